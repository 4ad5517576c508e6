// Package affiliate rewrites merchant URLs into tracked affiliate links and
// shortens them for distribution.
//
// Network detection follows a fixed order (Amazon, Flipkart, CJ, ShareASale,
// ClickBank) and falls back to appending tracking parameters only. A URL
// whose network-specific identifier cannot be found is returned unchanged
// and reported as not generated; callers treat that as a skip, not an error.
package affiliate
