// Package proxy implements the proxy orchestrator (C7): the per-request
// flow that ties account resolution, token refresh, request conversion,
// the upstream POST (with a single 401/403 retry), and dispatch to
// either the batch collector or the stream translator, per spec.md §4.7.
package proxy

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/kiro-gateway/kiro-gateway/internal/accounts"
	"github.com/kiro-gateway/kiro-gateway/internal/collector"
	"github.com/kiro-gateway/kiro-gateway/internal/convert"
	"github.com/kiro-gateway/kiro-gateway/internal/eventstream"
	"github.com/kiro-gateway/kiro-gateway/internal/kiroauth"
	"github.com/kiro-gateway/kiro-gateway/internal/ssewriter"
	"github.com/kiro-gateway/kiro-gateway/internal/tokencount"
	"github.com/kiro-gateway/kiro-gateway/internal/translator"
	"github.com/kiro-gateway/kiro-gateway/internal/upstream"
	anthropictypes "github.com/kiro-gateway/kiro-gateway/pkg/anthropic"
)

// ErrUnauthorized is returned when the inbound API key maps to no
// enabled account, per spec.md §4.7 step 1.
var ErrUnauthorized = errors.New("proxy: no enabled account for api key")

// Orchestrator holds the handles C7 threads through every request.
type Orchestrator struct {
	accounts *accounts.Store
	tokens   *kiroauth.Refresher
	upstream *upstream.Client
	mapModel convert.ModelMapper
}

// New creates an Orchestrator. mapModel may be nil, in which case model
// names pass through unchanged.
func New(store *accounts.Store, tokens *kiroauth.Refresher, client *upstream.Client, mapModel convert.ModelMapper) *Orchestrator {
	if mapModel == nil {
		mapModel = convert.IdentityMapper
	}
	return &Orchestrator{accounts: store, tokens: tokens, upstream: client, mapModel: mapModel}
}

// ResolveAccount maps an inbound API key to its account name, per
// spec.md §4.7 step 1 (dynamic store first, static table fallback,
// handled inside accounts.Store.GetByAPIKey).
func (o *Orchestrator) ResolveAccount(apiKey string) (string, error) {
	a, err := o.accounts.GetByAPIKey(apiKey)
	if err != nil || !a.Enabled {
		return "", ErrUnauthorized
	}
	return a.Name, nil
}

// HandleBatch runs the non-streaming path: POST, read the full body, run
// C1+C5, and return the synthesized Anthropic response.
func (o *Orchestrator) HandleBatch(ctx context.Context, accountName string, req anthropictypes.Request) (anthropictypes.Response, error) {
	inputTokens, err := o.estimateInputTokens(req)
	if err != nil {
		return anthropictypes.Response{}, err
	}

	cwReq, accessToken, err := o.build(ctx, accountName, req, false)
	if err != nil {
		return anthropictypes.Response{}, err
	}

	status, body, err := o.upstream.Do(ctx, accessToken, cwReq)
	if err != nil {
		return anthropictypes.Response{}, err
	}

	if status == 401 || status == 403 {
		cwReq, accessToken, err = o.build(ctx, accountName, req, true)
		if err != nil {
			return anthropictypes.Response{}, err
		}
		status, body, err = o.upstream.Do(ctx, accessToken, cwReq)
		if err != nil {
			return anthropictypes.Response{}, err
		}
	}
	if status != 200 {
		return anthropictypes.Response{}, fmt.Errorf("upstream: status %d: %s", status, string(body))
	}

	events := eventstream.DecodeAll(body)
	return collector.Collect(events, req.Model, inputTokens), nil
}

// HandleStream runs the streaming path: open a streaming upstream
// response, feed it through the incremental decoder and the stream
// translator, and write emitted SSE records to w. Once the upstream
// response has started, a read failure is surfaced as a synthesized
// `error` SSE event rather than returned; past that point an error is
// returned only when a write to w fails.
func (o *Orchestrator) HandleStream(ctx context.Context, accountName string, req anthropictypes.Request, w *ssewriter.Writer) error {
	inputTokens, err := o.estimateInputTokens(req)
	if err != nil {
		return err
	}

	cwReq, accessToken, err := o.build(ctx, accountName, req, false)
	if err != nil {
		return err
	}

	resp, err := o.upstream.Stream(ctx, accessToken, cwReq)
	if err != nil {
		var statusErr *upstream.StatusError
		if errors.As(err, &statusErr) && statusErr.Unauthorized() {
			cwReq, accessToken, err = o.build(ctx, accountName, req, true)
			if err != nil {
				return err
			}
			resp, err = o.upstream.Stream(ctx, accessToken, cwReq)
		}
		if err != nil {
			return err
		}
	}
	defer resp.Body.Close()

	tr := translator.New(w, req.Model, inputTokens)
	dec := eventstream.NewIncrementalDecoder()
	buf := make([]byte, 32*1024)

	for {
		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			for _, ev := range dec.Feed(buf[:n]) {
				if err := tr.HandleEvent(ev); err != nil {
					return err
				}
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return tr.EmitError(readErr.Error())
		}
	}

	return tr.Finish()
}

func (o *Orchestrator) build(ctx context.Context, accountName string, req anthropictypes.Request, force bool) (convert.CodeWhispererRequest, string, error) {
	token, err := o.tokens.GetToken(ctx, accountName, force)
	if err != nil {
		return convert.CodeWhispererRequest{}, "", fmt.Errorf("fetching token: %w", err)
	}

	arn, err := o.tokens.GetProfileArn(ctx, accountName, token.AccessToken)
	if err != nil {
		return convert.CodeWhispererRequest{}, "", fmt.Errorf("discovering profile arn: %w", err)
	}

	cwReq, err := convert.ToCodeWhisperer(req, arn, o.mapModel)
	if err != nil {
		return convert.CodeWhispererRequest{}, "", fmt.Errorf("building upstream request: %w", err)
	}
	return cwReq, token.AccessToken, nil
}

func (o *Orchestrator) estimateInputTokens(req anthropictypes.Request) (int, error) {
	text, err := convert.InputText(req)
	if err != nil {
		return 0, fmt.Errorf("extracting input text: %w", err)
	}
	return tokencount.Count(text), nil
}
