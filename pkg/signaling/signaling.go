// Package signaling is a single HTTP round trip: the caller posts its
// complete offer as JSON and receives the complete answer. There is no
// trickle ICE, so both descriptions must already carry all candidates.
package signaling

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/pion/sdp/v3"
	"github.com/rovelink/rovelink/pkg/core"
	"github.com/rs/zerolog"
)

const MimeJSON = "application/json"

var ErrSignaling = errors.New("signaling")

// Error is any failure of the exchange. Status is zero when there was no
// HTTP response or the response itself was malformed.
type Error struct {
	Status int
	Err    error
}

func (e *Error) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("signaling: status %d: %v", e.Status, e.Err)
	}
	return "signaling: " + e.Err.Error()
}

func (e *Error) Unwrap() error {
	return e.Err
}

func (e *Error) Is(target error) bool {
	return target == ErrSignaling
}

// Exchanger sends local offer and returns remote answer
type Exchanger interface {
	Exchange(ctx context.Context, offer core.Descriptor) (core.Descriptor, error)
}

type Client struct {
	URL  string
	HTTP *http.Client
}

func NewClient(url string) *Client {
	return &Client{URL: url, HTTP: http.DefaultClient}
}

// Exchange makes exactly one POST request
func (c *Client) Exchange(ctx context.Context, offer core.Descriptor) (core.Descriptor, error) {
	var answer core.Descriptor

	body, err := json.Marshal(offer)
	if err != nil {
		return answer, &Error{Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.URL, bytes.NewReader(body))
	if err != nil {
		return answer, &Error{Err: err}
	}
	req.Header.Set("Content-Type", MimeJSON)

	client := c.HTTP
	if client == nil {
		client = http.DefaultClient
	}

	res, err := client.Do(req)
	if err != nil {
		return answer, &Error{Err: err}
	}
	defer res.Body.Close()

	if res.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(res.Body, 512))
		return answer, &Error{Status: res.StatusCode, Err: errors.New(strings.TrimSpace(string(msg)))}
	}

	if err = json.NewDecoder(res.Body).Decode(&answer); err != nil {
		return answer, &Error{Err: fmt.Errorf("wrong answer body: %w", err)}
	}

	if err = Validate(answer, core.DescriptorAnswer); err != nil {
		return answer, &Error{Err: err}
	}

	return answer, nil
}

// Validate checks that description has expected type and some body. The
// body itself is opaque here, the transport rejects what it can't apply.
func Validate(desc core.Descriptor, typ string) error {
	if desc.Type != typ {
		return fmt.Errorf("wrong description type: %q", desc.Type)
	}
	if desc.SDP == "" {
		return errors.New("empty sdp")
	}
	return nil
}

// ValidateSDP checks SDP syntax, the answering side does it before
// spending a peer on the offer
func ValidateSDP(desc core.Descriptor) error {
	sd := &sdp.SessionDescription{}
	if err := sd.Unmarshal([]byte(desc.SDP)); err != nil {
		return fmt.Errorf("wrong sdp: %w", err)
	}
	return nil
}

// AnswerFunc builds complete answer for remote offer
type AnswerFunc func(ctx context.Context, offer core.Descriptor) (core.Descriptor, error)

// Handler serves the answering side of Exchange
func Handler(answer AnswerFunc, log zerolog.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			http.Error(w, "", http.StatusMethodNotAllowed)
			return
		}

		var offer core.Descriptor
		if err := json.NewDecoder(r.Body).Decode(&offer); err != nil {
			log.Warn().Err(err).Caller().Send()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		err := Validate(offer, core.DescriptorOffer)
		if err == nil {
			err = ValidateSDP(offer)
		}
		if err != nil {
			log.Warn().Err(err).Caller().Send()
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}

		log.Trace().Msgf("[signaling] offer from %s\n%s", r.RemoteAddr, offer.SDP)

		desc, err := answer(r.Context(), offer)
		if err != nil {
			log.Error().Err(err).Caller().Send()
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}

		log.Trace().Msgf("[signaling] answer\n%s", desc.SDP)

		w.Header().Set("Content-Type", MimeJSON)
		if err = json.NewEncoder(w).Encode(desc); err != nil {
			log.Error().Err(err).Caller().Send()
		}
	}
}

// Negotiate creates local offer, waits for all candidates and exchanges
// offer to answer. The answer is returned, not applied, so the caller can
// drop it if the transport was closed meanwhile.
func Negotiate(ctx context.Context, t core.Transport, ex Exchanger) (core.Descriptor, error) {
	offer, err := t.CreateOffer()
	if err != nil {
		return core.Descriptor{}, err
	}

	if err = t.SetLocalDescription(offer); err != nil {
		return core.Descriptor{}, err
	}

	select {
	case <-t.GatheringComplete():
	case <-ctx.Done():
		return core.Descriptor{}, ctx.Err()
	}

	local := t.LocalDescription()
	if local == nil {
		return core.Descriptor{}, errors.New("signaling: no local description")
	}

	return ex.Exchange(ctx, *local)
}
