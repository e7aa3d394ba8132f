package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	govalidator "github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"
	"github.com/stemsi/cbt-gateway/internal/model"
)

const (
	pathLogin     = "/auth/login"
	pathQuestions = "/candidates/me/questions"
	pathSubmit    = "/candidates/me/exam/submit"
	pathSchedule  = "/candidates/me/exam-scheduled"
)

// LoginResult is the normalized outcome of a backend login.
type LoginResult struct {
	Token     string
	Candidate model.Candidate
}

// Client talks to the certification REST backend. It never retries.
type Client struct {
	baseURL  string
	http     *http.Client
	validate *govalidator.Validate
	log      zerolog.Logger
}

// NewClient creates a backend client rooted at baseURL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:  strings.TrimRight(baseURL, "/"),
		http:     &http.Client{Timeout: timeout},
		validate: newValidator(),
		log:      log.With().Str("component", "backend_client").Logger(),
	}
}

// Login exchanges candidate credentials for an upstream token.
func (c *Client) Login(ctx context.Context, username, password string) (*LoginResult, error) {
	body := map[string]string{"username": username, "password": password}

	var resp loginResponse
	if err := c.do(ctx, http.MethodPost, pathLogin, "", body, &resp); err != nil {
		return nil, err
	}
	return &LoginResult{Token: resp.Token, Candidate: resp.Candidate}, nil
}

// Questions fetches the ordered questions of the candidate's exam.
func (c *Client) Questions(ctx context.Context, token string) ([]model.Question, error) {
	var resp questionsResponse
	if err := c.do(ctx, http.MethodGet, pathQuestions, token, nil, &resp); err != nil {
		return nil, err
	}
	if err := checkOrdinals(resp.Questions); err != nil {
		return nil, err
	}
	return resp.Questions, nil
}

// Schedule fetches the candidate's exam status and timing.
func (c *Client) Schedule(ctx context.Context, token string) (*model.ExamSchedule, error) {
	var resp model.ExamSchedule
	if err := c.do(ctx, http.MethodGet, pathSchedule, token, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Submit sends the ordered answers in one request.
func (c *Client) Submit(ctx context.Context, token string, answers []model.SubmittedAnswer) error {
	if answers == nil {
		answers = []model.SubmittedAnswer{}
	}
	return c.do(ctx, http.MethodPost, pathSubmit, token, model.SubmitRequest{Answers: answers}, nil)
}

func (c *Client) do(ctx context.Context, method, path, token string, in, out interface{}) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	c.log.Debug().
		Str("method", method).
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("Backend call")

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return readError(resp)
	}

	if out == nil {
		_, _ = io.Copy(io.Discard, resp.Body)
		return nil
	}
	return c.decode(resp.Body, out)
}

func readError(resp *http.Response) error {
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))

	var e errorResponse
	msg := http.StatusText(resp.StatusCode)
	if json.Unmarshal(raw, &e) == nil && e.Message != "" {
		msg = e.Message
	}
	return &Error{Status: resp.StatusCode, Message: msg}
}
