package platform

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strings"

	"dealflow/internal/store"
)

const (
	userAgent    = "dealflow/1.0"
	maxErrorBody = 2048
)

// Adapter delivers content to one platform.
type Adapter interface {
	Name() string
	Deliver(ctx context.Context, content Content) error
}

// Content is the rendered input for one delivery, built from the product's
// fields at dispatch time.
type Content struct {
	ProductID       int64
	Title           string
	Price           float64
	OriginalPrice   float64
	DiscountPercent float64
	Category        string
	ImageURL        string
	Features        string
	AffiliateURLs   map[string]string
	Template        string
}

// ContentFor builds delivery content from a product and a delivery template.
func ContentFor(p *store.Product, template string) Content {
	urls := make(map[string]string, len(p.AffiliateURLs))
	for network, link := range p.AffiliateURLs {
		urls[network] = link
	}
	return Content{
		ProductID:       p.ID,
		Title:           p.Title,
		Price:           p.Price,
		OriginalPrice:   p.OriginalPrice,
		DiscountPercent: p.DiscountPercent,
		Category:        p.Category,
		ImageURL:        p.ImageURL,
		Features:        p.Features,
		AffiliateURLs:   urls,
		Template:        template,
	}
}

// Savings returns the amount saved against the original price, never negative.
func (c Content) Savings() float64 {
	if c.OriginalPrice <= c.Price {
		return 0
	}
	return c.OriginalPrice - c.Price
}

// Networks returns the affiliate networks with links, sorted by name.
func (c Content) Networks() []string {
	names := make([]string, 0, len(c.AffiliateURLs))
	for name, link := range c.AffiliateURLs {
		if strings.TrimSpace(link) != "" {
			names = append(names, name)
		}
	}
	sort.Strings(names)
	return names
}

// PrimaryURL returns the first affiliate link in network order.
func (c Content) PrimaryURL() string {
	networks := c.Networks()
	if len(networks) == 0 {
		return ""
	}
	return c.AffiliateURLs[networks[0]]
}

// ErrorClassifier lets errors declare how the scheduler should record them.
type ErrorClassifier interface {
	ErrorKind() string
}

// RejectedError reports that a platform refused a post.
type RejectedError struct {
	Platform string
	Status   int
	Message  string
}

func (e *RejectedError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s rejected post (%d): %s", e.Platform, e.Status, e.Message)
	}
	return fmt.Sprintf("%s rejected post: %s", e.Platform, e.Message)
}

// ErrorKind implements ErrorClassifier.
func (e *RejectedError) ErrorKind() string { return "rejected" }

// Reject builds a RejectedError without an HTTP status.
func Reject(platform, message string) error {
	return &RejectedError{Platform: platform, Message: message}
}

// IsRejected reports whether err is an ordinary platform rejection.
func IsRejected(err error) bool {
	var classifier ErrorClassifier
	if errors.As(err, &classifier) {
		return classifier.ErrorKind() == "rejected"
	}
	return false
}

// checkResponse maps an HTTP response to nil, a rejection, or a fault. The
// body is drained either way.
func checkResponse(platform string, resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	message := strings.TrimSpace(string(body))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests,
		resp.StatusCode == http.StatusRequestTimeout,
		resp.StatusCode >= 500:
		return fmt.Errorf("%s returned %d: %s", platform, resp.StatusCode, message)
	default:
		return &RejectedError{Platform: platform, Status: resp.StatusCode, Message: message}
	}
}

// Registry maps platform names to adapters.
type Registry struct {
	adapters map[string]Adapter
}

// NewRegistry returns a registry holding adapters.
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{adapters: make(map[string]Adapter, len(adapters))}
	for _, a := range adapters {
		r.Register(a)
	}
	return r
}

// Register adds or replaces the adapter for a.Name().
func (r *Registry) Register(a Adapter) {
	if a == nil {
		return
	}
	r.adapters[a.Name()] = a
}

// Get returns the adapter for name.
func (r *Registry) Get(name string) (Adapter, bool) {
	if r == nil {
		return nil, false
	}
	a, ok := r.adapters[name]
	return a, ok
}

// Names lists registered platforms in sorted order.
func (r *Registry) Names() []string {
	if r == nil {
		return nil
	}
	names := make([]string, 0, len(r.adapters))
	for name := range r.adapters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// unwrapURLError drops the request URL from transport errors.
func unwrapURLError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}
