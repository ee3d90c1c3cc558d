package matrix

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/bnema/mxload/internal/domain"
	"github.com/bnema/mxload/internal/metrics"
)

const authTypeDummy = "m.login.dummy"

// RegisterResult carries the credentials a successful registration hands
// back.
type RegisterResult struct {
	UserID      string `json:"user_id"`
	AccessToken string `json:"access_token"`
	DeviceID    string `json:"device_id"`
}

type registerRequest struct {
	Username     string        `json:"username"`
	Password     string        `json:"password"`
	InhibitLogin bool          `json:"inhibit_login"`
	Auth         *registerAuth `json:"auth,omitempty"`
}

type registerAuth struct {
	Type    string `json:"type"`
	Session string `json:"session,omitempty"`
}

type uiaaResponse struct {
	Flows []struct {
		Stages []string `json:"stages"`
	} `json:"flows"`
	Session string `json:"session"`
}

// Register creates the account. A 200 on the first attempt means the
// server needed no interactive auth. A 401 starts a UIAA exchange; the only
// supported stage is m.login.dummy — a flow set without a dummy-only flow
// is a terminal RegistrationError and is never resubmitted.
func (c *Client) Register(ctx context.Context, username, password string) (RegisterResult, error) {
	const label = clientPrefix + "/register"

	body := registerRequest{Username: username, Password: password}
	status, payload, err := c.postRegister(ctx, label, body)
	if err != nil {
		return RegisterResult{}, err
	}

	if status == http.StatusOK {
		return parseRegisterResult(username, payload)
	}
	if status != http.StatusUnauthorized {
		return RegisterResult{}, registerStatusError(status, payload)
	}

	// Unauthorized here is part of the flow, not an error.
	var uiaa uiaaResponse
	if err := json.Unmarshal(payload, &uiaa); err != nil {
		return RegisterResult{}, &domain.RegistrationError{
			Username: username,
			Reason:   fmt.Sprintf("unparseable interactive-auth response: %v", err),
		}
	}
	if len(uiaa.Flows) == 0 {
		return RegisterResult{}, &domain.RegistrationError{
			Username: username,
			Reason:   "no interactive-auth flows offered",
		}
	}
	if !hasDummyFlow(uiaa) {
		return RegisterResult{}, &domain.RegistrationError{
			Username: username,
			Reason:   "no m.login.dummy flow offered",
		}
	}

	body.Auth = &registerAuth{Type: authTypeDummy, Session: uiaa.Session}
	status, payload, err = c.postRegister(ctx, label, body)
	if err != nil {
		return RegisterResult{}, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return RegisterResult{}, registerStatusError(status, payload)
	}

	return parseRegisterResult(username, payload)
}

func hasDummyFlow(uiaa uiaaResponse) bool {
	for _, flow := range uiaa.Flows {
		if len(flow.Stages) == 1 && flow.Stages[0] == authTypeDummy {
			return true
		}
	}
	return false
}

func parseRegisterResult(username string, payload []byte) (RegisterResult, error) {
	var result RegisterResult
	if err := json.Unmarshal(payload, &result); err != nil {
		return RegisterResult{}, &domain.RegistrationError{
			Username: username,
			Reason:   fmt.Sprintf("unparseable register response: %v", err),
		}
	}
	if result.UserID == "" || result.AccessToken == "" {
		return RegisterResult{}, &domain.RegistrationError{
			Username: username,
			Reason:   "register response missing user_id or access_token",
		}
	}
	return result, nil
}

func registerStatusError(status int, payload []byte) error {
	apiErr := &APIError{StatusCode: status}
	var body struct {
		Errcode string `json:"errcode"`
		Message string `json:"error"`
	}
	if err := json.Unmarshal(payload, &body); err == nil {
		apiErr.Errcode = body.Errcode
		apiErr.Message = body.Message
	}
	return apiErr
}

// postRegister returns the raw status and body: unlike every other call,
// /register treats 401 as a protocol step rather than a failure.
func (c *Client) postRegister(ctx context.Context, label string, body registerRequest) (int, []byte, error) {
	endpoint, err := c.endpoint(clientPrefix + "/register")
	if err != nil {
		return 0, nil, err
	}

	encoded, err := json.Marshal(body)
	if err != nil {
		return 0, nil, fmt.Errorf("encode register request: %w", err)
	}

	requestCtx, cancel := c.requestContext(ctx)
	defer cancel()

	req, err := http.NewRequestWithContext(requestCtx, http.MethodPost, endpoint, bytes.NewReader(encoded))
	if err != nil {
		return 0, nil, fmt.Errorf("create register request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient().Do(req)
	if err != nil {
		metrics.ObserveRequest(label, metrics.ResultError)
		return 0, nil, fmt.Errorf("request register: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	payload, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		metrics.ObserveRequest(label, metrics.ResultError)
		return 0, nil, fmt.Errorf("read register response: %w", err)
	}

	if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusCreated ||
		resp.StatusCode == http.StatusUnauthorized {
		metrics.ObserveRequest(label, metrics.ResultOK)
	} else {
		metrics.ObserveRequest(label, fmt.Sprintf("%d", resp.StatusCode))
	}

	return resp.StatusCode, payload, nil
}
