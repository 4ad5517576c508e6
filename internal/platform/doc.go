// Package platform delivers rendered deal posts to distribution platforms.
//
// Each adapter performs exactly one attempt per Deliver call. Errors that
// implement ErrorKind() == "rejected" mean the platform refused the post and
// a repeat would fail the same way; everything else (transport failures,
// timeouts, 5xx, 429) is a fault the scheduler may retry.
package platform
