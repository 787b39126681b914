// Package billing builds the payment links shown to recipients. The payment
// provider and its webhooks live outside this process.
package billing

import (
	"context"
	"errors"
	"net/url"
	"strconv"
	"strings"
)

var ErrNotConfigured = errors.New("billing: link not configured")

const idPlaceholder = "{id}"

// Links renders URL templates. Every "{id}" is replaced by the recipient id.
type Links struct {
	Checkout string
	Portal   string
}

func New(checkout, portal string) (*Links, error) {
	l := &Links{Checkout: strings.TrimSpace(checkout), Portal: strings.TrimSpace(portal)}
	for _, tpl := range []string{l.Checkout, l.Portal} {
		if tpl == "" {
			continue
		}
		if _, err := url.Parse(strings.ReplaceAll(tpl, idPlaceholder, "0")); err != nil {
			return nil, err
		}
	}
	return l, nil
}

func (l *Links) CheckoutURL(_ context.Context, id int64) (string, error) {
	return render(l.Checkout, id)
}

// PortalURL falls back to the checkout link when no portal is configured.
func (l *Links) PortalURL(ctx context.Context, id int64) (string, error) {
	if l.Portal == "" {
		return l.CheckoutURL(ctx, id)
	}
	return render(l.Portal, id)
}

func render(tpl string, id int64) (string, error) {
	if tpl == "" {
		return "", ErrNotConfigured
	}
	return strings.ReplaceAll(tpl, idPlaceholder, strconv.FormatInt(id, 10)), nil
}
