package proof

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Relayer job states, in the order a healthy job moves through them.
const (
	JobQueued          = "Queued"
	JobValid           = "Valid"
	JobSubmitted       = "Submitted"
	JobIncludedInBlock = "IncludedInBlock"
	JobFinalized       = "Finalized"
	JobAggregated      = "Aggregated"
	JobFailed          = "Failed"
)

var (
	errPending  = errors.New("job not final yet")
	errRejected = errors.New("job rejected by chain")
)

// statusError is a non-2xx relayer reply.
type statusError struct {
	Method string
	Path   string
	Code   int
	Body   string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("relayer %s %s: status %d: %s", e.Method, e.Path, e.Code, e.Body)
}

// retryable reports whether polling again could change the answer.
func (e *statusError) retryable() bool {
	return e.Code >= 500 || e.Code == http.StatusTooManyRequests || e.Code == http.StatusRequestTimeout
}

// Receipt is the durable outcome of a finalized submission.
type Receipt struct {
	JobID          string `json:"jobId"`
	TransactionRef string `json:"txHash"`
	AttestationRef string `json:"attestationId"`
	Status         string `json:"status"`
}

type RelayerConfig struct {
	BaseURL         string
	APIKey          string
	PollInterval    time.Duration
	FinalityTimeout time.Duration
	Timeout         time.Duration
}

// Relayer submits proofs to the verification chain through a relayer
// service and waits for block finality.
type Relayer struct {
	cfg    RelayerConfig
	client *http.Client
}

func NewRelayer(cfg RelayerConfig, client *http.Client) *Relayer {
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		client = &http.Client{Timeout: timeout}
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = 2 * time.Second
	}
	if cfg.FinalityTimeout <= 0 {
		cfg.FinalityTimeout = 3 * time.Minute
	}
	return &Relayer{cfg: cfg, client: client}
}

type submitRequest struct {
	ProofType    string `json:"proofType"`
	VkRegistered bool   `json:"vkRegistered"`
	ProofOptions struct {
		Library string `json:"library"`
		Curve   string `json:"curve"`
	} `json:"proofOptions"`
	ProofData struct {
		Proof         string `json:"proof"`
		PublicSignals string `json:"publicSignals"`
		Vk            string `json:"vk"`
	} `json:"proofData"`
}

type submitResponse struct {
	JobID            string `json:"jobId"`
	OptimisticVerify string `json:"optimisticVerify"`
	Error            string `json:"error"`
}

type jobStatus struct {
	JobID         string `json:"jobId"`
	Status        string `json:"status"`
	TxHash        string `json:"txHash"`
	AttestationID string `json:"attestationId"`
	Statement     string `json:"statement"`
	Error         string `json:"error"`
}

// Submit sends the proof and returns the relayer job id (the pending handle).
func (r *Relayer) Submit(ctx context.Context, p *Proof) (string, error) {
	var body submitRequest
	body.ProofType = "groth16"
	body.ProofOptions.Library = "gnark"
	body.ProofOptions.Curve = "bn254"
	body.ProofData.Proof = "0x" + hex.EncodeToString(p.Proof)
	body.ProofData.PublicSignals = "0x" + hex.EncodeToString(p.PublicInputs)
	body.ProofData.Vk = "0x" + hex.EncodeToString(p.VerifyingKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return "", &ProofError{Stage: StageSubmission, Err: err}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.url("submit-proof", r.cfg.APIKey), bytes.NewReader(payload))
	if err != nil {
		return "", &ProofError{Stage: StageSubmission, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	var res submitResponse
	if err := r.do(req, &res); err != nil {
		return "", &ProofError{Stage: StageSubmission, Err: err}
	}
	if res.JobID == "" {
		return "", &ProofError{Stage: StageSubmission, Err: fmt.Errorf("relayer returned no job id: %s", res.Error)}
	}
	if strings.EqualFold(res.OptimisticVerify, "failed") {
		return "", &ProofError{Stage: StageSubmission, Err: fmt.Errorf("%w: optimistic verification failed", errRejected)}
	}
	return res.JobID, nil
}

// AwaitFinality polls the job until it is finalized, rejected, or the
// finality timeout elapses.
func (r *Relayer) AwaitFinality(ctx context.Context, jobID string) (*Receipt, error) {
	waitCtx, cancel := context.WithTimeout(ctx, r.cfg.FinalityTimeout)
	defer cancel()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = r.cfg.PollInterval
	b.MaxInterval = 4 * r.cfg.PollInterval

	receipt, err := backoff.Retry(waitCtx, func() (*Receipt, error) {
		st, err := r.status(waitCtx, jobID)
		if err != nil {
			var se *statusError
			if errors.As(err, &se) && !se.retryable() {
				return nil, backoff.Permanent(err)
			}
			return nil, err
		}
		switch st.Status {
		case JobFinalized, JobAggregated:
			attestation := st.AttestationID
			if attestation == "" {
				attestation = st.Statement
			}
			if attestation == "" {
				attestation = "pending"
			}
			return &Receipt{
				JobID:          jobID,
				TransactionRef: st.TxHash,
				AttestationRef: attestation,
				Status:         st.Status,
			}, nil
		case JobFailed:
			return nil, backoff.Permanent(fmt.Errorf("%w: %s", errRejected, st.Error))
		default:
			return nil, errPending
		}
	}, backoff.WithBackOff(b), backoff.WithMaxElapsedTime(r.cfg.FinalityTimeout))

	if err == nil {
		return receipt, nil
	}
	var se *statusError
	switch {
	case errors.Is(err, errRejected), errors.As(err, &se) && !se.retryable():
		return nil, &ProofError{Stage: StageSubmission, Err: err}
	case ctx.Err() != nil:
		return nil, &ProofError{Stage: StageSubmission, Err: ctx.Err()}
	default:
		return nil, &ProofError{Stage: StageFinalityTimeout, Err: err}
	}
}

func (r *Relayer) status(ctx context.Context, jobID string) (*jobStatus, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, r.url("job-status", r.cfg.APIKey, jobID), nil)
	if err != nil {
		return nil, err
	}
	var st jobStatus
	if err := r.do(req, &st); err != nil {
		return nil, err
	}
	return &st, nil
}

func (r *Relayer) do(req *http.Request, out interface{}) error {
	resp, err := r.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode >= 300 {
		return &statusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	return json.Unmarshal(body, out)
}

func (r *Relayer) url(parts ...string) string {
	return strings.TrimRight(r.cfg.BaseURL, "/") + "/" + strings.Join(parts, "/")
}
