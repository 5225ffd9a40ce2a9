package notification

import (
	"context"
	"io"
	"log"
	"strings"
	"time"

	shoutrrr "github.com/nicholas-fedor/shoutrrr"
	router "github.com/nicholas-fedor/shoutrrr/pkg/router"
	stypes "github.com/nicholas-fedor/shoutrrr/pkg/types"

	"github.com/arribada/audiocontroller/internal/errors"
	"github.com/arribada/audiocontroller/internal/privacy"
)

// ShoutrrrProvider sends to one shoutrrr service URL
type ShoutrrrProvider struct {
	name    string
	url     string
	sender  *router.ServiceRouter
	timeout time.Duration
}

// NewShoutrrrProvider validates url and builds its sender. The provider is
// named after the URL scheme.
func NewShoutrrrProvider(url string, timeout time.Duration) (*ShoutrrrProvider, error) {
	url = strings.TrimSpace(url)
	sender, err := shoutrrr.CreateSender(url)
	if err != nil {
		return nil, errors.New(privacy.WrapError(err)).
			Component("notification").
			Category(errors.CategoryConfiguration).
			Context("service", privacy.ServiceName(url)).
			Build()
	}
	if timeout > 0 {
		sender.Timeout = timeout
	}
	sender.SetLogger(log.New(io.Discard, "", 0))

	return &ShoutrrrProvider{
		name:    privacy.ServiceName(url),
		url:     url,
		sender:  sender,
		timeout: timeout,
	}, nil
}

// GetName returns the service scheme, e.g. "telegram"
func (s *ShoutrrrProvider) GetName() string { return s.name }

// Send delivers n. The router applies its own timeout; ctx is checked before sending.
func (s *ShoutrrrProvider) Send(ctx context.Context, n *Notification) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := stypes.Params{}
	if n.Title != "" {
		params.SetTitle(n.Title)
	}
	for _, err := range s.sender.Send(n.Message, &params) {
		if err != nil {
			return privacy.WrapError(err)
		}
	}
	return nil
}
