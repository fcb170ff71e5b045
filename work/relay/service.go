// Package relay turns a start-stream request into an upstream call, pulls the
// RTMP ingest details out of the answer and records the attempt.
package relay

import (
	"context"
	"strings"

	"github.com/pkg/errors"

	"streamkey-relay/work/activity"
	"streamkey-relay/work/credentials"
	"streamkey-relay/work/errs"
	"streamkey-relay/work/extract"
	"streamkey-relay/work/logger"
	"streamkey-relay/work/metrics"
	"streamkey-relay/work/upstream"
	"streamkey-relay/work/utils"
)

const (
	// CustomTokenID selects the token supplied in the request body.
	CustomTokenID = "custom"
	// CustomAccountName is recorded for attempts made with a custom token.
	CustomAccountName = "Custom Token"
)

// Caller-facing messages for a completed request.
const (
	MsgExtracted = "RTMP data extracted successfully!"                       // ingest details found
	MsgNoMatch   = "Stream request sent but could not extract RTMP/Key data" // upstream answered, nothing extracted
	NoteNoMatch  = "Check the full response data for manual extraction"      // hint sent alongside MsgNoMatch
)

var log = logger.New("relay")

// CredentialReader loads the saved credential records.
type CredentialReader interface {
	ReadAll() (*credentials.File, error)
}

// ActivityAppender records one attempt.
type ActivityAppender interface {
	Append(e activity.Entry) error
}

// Starter performs the upstream start-stream call.
type Starter interface {
	StartStream(ctx context.Context, token, title string) (*upstream.Response, error)
}

// Request is the body of POST /api/start-stream.
type Request struct {
	SelectedTokenID string `json:"selectedTokenId"`
	CustomToken     string `json:"customToken"`
	StreamTitle     string `json:"streamTitle"`
}

// Outcome describes a completed attempt. Result is nil when nothing could be
// extracted, in which case Payload holds the raw upstream answer.
type Outcome struct {
	Account    string
	StatusCode int
	Payload    any
	Result     *extract.Result
}

// Found reports whether extraction produced a result.
func (o *Outcome) Found() bool {
	return o.Result != nil
}

// Service wires the stores and the upstream client together.
type Service struct {
	creds     CredentialReader
	attempts  ActivityAppender
	upstream  Starter
	obfuscate bool
}

// NewService returns a Service. Secrets are masked in log output when
// obfuscate is set.
func NewService(creds CredentialReader, attempts ActivityAppender, up Starter, obfuscate bool) *Service {
	return &Service{
		creds:     creds,
		attempts:  attempts,
		upstream:  up,
		obfuscate: obfuscate,
	}
}

// Start runs one attempt. Validation failures return an InvalidInput error
// and leave the activity log untouched. Upstream failures are logged as failed
// attempts and returned as *errs.UpstreamError.
func (s *Service) Start(ctx context.Context, req Request) (*Outcome, error) {
	title := strings.TrimSpace(req.StreamTitle)
	if title == "" {
		metrics.StreamAttempts.WithLabelValues(metrics.OutcomeRejected).Inc()
		return nil, errs.InvalidInput("Stream title is required")
	}

	account, token, err := s.resolve(req)
	if err != nil {
		if errs.IsInvalidInput(err) {
			metrics.StreamAttempts.WithLabelValues(metrics.OutcomeRejected).Inc()
		} else {
			metrics.StreamAttempts.WithLabelValues(metrics.OutcomeStoreError).Inc()
		}
		return nil, err
	}

	log.Info("{relay - Start} account=%q title=%q", account, title)

	resp, err := s.upstream.StartStream(ctx, token, title)
	if err != nil {
		metrics.StreamAttempts.WithLabelValues(metrics.OutcomeUpstreamError).Inc()
		log.Error("{relay - Start} upstream call for %q failed: %v", account, err)
		s.record(failedEntry(account, title, err))
		return nil, err
	}
	log.Debug("{relay - Start} upstream answered %s", resp)

	var result *extract.Result
	if resp.JSON {
		result = extract.FromBytes(resp.Body)
	}
	found := result != nil

	status := resp.StatusCode
	s.record(activity.Entry{
		Account:     account,
		StreamTitle: title,
		Success:     found,
		StatusCode:  &status,
		RTMPFound:   found,
	})

	if found {
		metrics.StreamAttempts.WithLabelValues(metrics.OutcomeExtracted).Inc()
		log.Info("{relay - Start} extracted server=%s key=%s", result.RTMPServer, s.mask(result.StreamKey))
	} else {
		metrics.StreamAttempts.WithLabelValues(metrics.OutcomeNoMatch).Inc()
		log.Warn("{relay - Start} no RTMP/key data in upstream response (status %d)", status)
	}

	return &Outcome{
		Account:    account,
		StatusCode: status,
		Payload:    resp.Payload(),
		Result:     result,
	}, nil
}

// resolve picks the bearer token and the account name to record.
func (s *Service) resolve(req Request) (account, token string, err error) {
	if req.SelectedTokenID == CustomTokenID {
		token = strings.TrimSpace(req.CustomToken)
		if token == "" {
			return "", "", errs.InvalidInput(`Custom bearer token is required when "Custom Token" is selected`)
		}
		return CustomAccountName, token, nil
	}

	f, err := s.creds.ReadAll()
	if err != nil {
		log.Error("{relay - resolve} failed to read credentials: %v", err)
		return "", "", err
	}

	c, ok := f.Find(req.SelectedTokenID)
	token = strings.TrimSpace(c.Token)
	if !ok || !c.Usable() || token == "" {
		return "", "", errs.InvalidInput("Selected bearer token is not configured, disabled, or invalid")
	}
	return c.Name, token, nil
}

// record appends e to the activity log. Failures are logged and counted but
// never surface to the caller.
func (s *Service) record(e activity.Entry) {
	if err := s.attempts.Append(e); err != nil {
		metrics.ActivityWriteFailures.Inc()
		log.Warn("{relay - record} failed to log stream activity: %v", err)
	}
}

func (s *Service) mask(secret string) string {
	if !s.obfuscate || secret == extract.NotFound {
		return secret
	}
	return utils.MaskToken(secret)
}

func failedEntry(account, title string, err error) activity.Entry {
	msg := errs.Msg(err)
	e := activity.Entry{
		Account:     account,
		StreamTitle: title,
		Success:     false,
		Error:       &msg,
	}

	var upErr *errs.UpstreamError
	if errors.As(err, &upErr) && upErr.HasStatus() {
		status := upErr.StatusCode
		e.StatusCode = &status
	}
	return e
}
