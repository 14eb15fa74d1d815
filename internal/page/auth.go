package page

import (
	"context"
	"fmt"
	"time"

	"github.com/grantcarthew/stealthfetch/internal/cdp"
)

// authReplyTimeout bounds each Fetch.continue* reply.
const authReplyTimeout = 10 * time.Second

// EnableProxyAuth answers proxy authentication challenges with the given
// credentials. Chrome ignores credentials in --proxy-server, so they are
// supplied through the Fetch domain instead. Every request is paused by
// Fetch.enable and resumed unchanged. Challenges from origin servers are
// left to Chrome's default handling.
//
// The returned function removes the handlers.
func (p *Page) EnableProxyAuth(ctx context.Context, username, password string) (func(), error) {
	unsubAuth := p.client.Subscribe("Fetch.authRequired", func(evt cdp.Event) {
		var params struct {
			RequestID     string `json:"requestId"`
			AuthChallenge struct {
				Source string `json:"source"`
				Origin string `json:"origin"`
			} `json:"authChallenge"`
		}
		if err := evt.Decode(&params); err != nil {
			p.logger.Debug("bad Fetch.authRequired event", "error", err)
			return
		}

		response := map[string]any{"response": "Default"}
		if params.AuthChallenge.Source == "Proxy" {
			response = map[string]any{
				"response": "ProvideCredentials",
				"username": username,
				"password": password,
			}
		}

		// Handlers run on the read loop; replying inline would deadlock
		go p.reply("Fetch.continueWithAuth", map[string]any{
			"requestId":             params.RequestID,
			"authChallengeResponse": response,
		})
	})

	unsubPaused := p.client.Subscribe("Fetch.requestPaused", func(evt cdp.Event) {
		var params struct {
			RequestID string `json:"requestId"`
		}
		if err := evt.Decode(&params); err != nil {
			p.logger.Debug("bad Fetch.requestPaused event", "error", err)
			return
		}
		go p.reply("Fetch.continueRequest", map[string]any{
			"requestId": params.RequestID,
		})
	})

	stop := func() {
		unsubAuth()
		unsubPaused()
	}

	if err := p.client.Call(ctx, "Fetch.enable", map[string]any{
		"handleAuthRequests": true,
	}, nil); err != nil {
		stop()
		return nil, fmt.Errorf("enable fetch domain: %w", err)
	}

	return stop, nil
}

func (p *Page) reply(method string, params map[string]any) {
	ctx, cancel := context.WithTimeout(context.Background(), authReplyTimeout)
	defer cancel()
	if err := p.client.Call(ctx, method, params, nil); err != nil {
		p.logger.Debug("fetch reply failed", "method", method, "error", err)
	}
}
