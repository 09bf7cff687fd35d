package web

import (
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/weeasd57/stockroom-wind-sub003/internal/domain/model"
	"github.com/weeasd57/stockroom-wind-sub003/internal/infra/logging"
	"github.com/weeasd57/stockroom-wind-sub003/internal/usecase"
)

// maxWebhookBody bounds an inbound delivery; PayPal events are small.
const maxWebhookBody = 1 << 20

type subscriptionView struct {
	Plan        string     `json:"plan"`
	DisplayName string     `json:"display_name"`
	Status      string     `json:"status"`
	Restricted  bool       `json:"restricted"`
	FreeTier    bool       `json:"free_tier"`
	ExternalID  *string    `json:"external_subscription_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	CancelledAt *time.Time `json:"cancelled_at,omitempty"`
	Usage       usageView  `json:"usage"`
}

type usageView struct {
	PriceChecksUsed   int `json:"price_checks_used"`
	PriceCheckLimit   int `json:"price_check_limit"`
	PostsCreated      int `json:"posts_created"`
	PostCreationLimit int `json:"post_creation_limit"`
}

func subscriptionViewFrom(info *model.SubscriptionInfo) subscriptionView {
	v := subscriptionView{FreeTier: info.OnFreeTier()}
	if info.Plan != nil {
		v.Plan = string(info.Plan.Name)
		v.DisplayName = info.Plan.DisplayName
		v.Usage.PriceCheckLimit = info.Plan.PriceCheckLimit
		v.Usage.PostCreationLimit = info.Plan.PostCreationLimit
	}
	if info.Record != nil {
		v.Status = string(info.Record.Status)
		v.Restricted = info.Record.Restricted
		v.ExternalID = info.Record.ExternalSubscriptionID
		v.ExpiresAt = info.Record.ExpiresAt
		v.CancelledAt = info.Record.CancelledAt
		v.Usage.PriceChecksUsed = info.Record.PriceChecksUsed
		v.Usage.PostsCreated = info.Record.PostsCreated
	} else {
		v.Status = string(model.SubscriptionStatusActive)
	}
	return v
}

func (s *Server) handleGetSubscription(w http.ResponseWriter, r *http.Request) {
	info, err := s.reconUC.GetSubscriptionInfo(r.Context(), AuthedUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, subscriptionViewFrom(info))
}

// cancelRequest's ShouldCancelPayPal defaults to true when omitted; false
// requests a local-only downgrade that leaves the provider agreement running.
type cancelRequest struct {
	Reason             string            `json:"reason"`
	ShouldCancelPayPal *bool             `json:"should_cancel_paypal"`
	Metadata           map[string]string `json:"metadata"`
}

type cancelResponse struct {
	AlreadyFree        bool       `json:"already_free"`
	PreviousPlan       string     `json:"previous_plan,omitempty"`
	NewPlan            string     `json:"new_plan"`
	CancelledAt        *time.Time `json:"cancelled_at,omitempty"`
	RemoteCancelFailed bool       `json:"remote_cancel_failed,omitempty"`
}

func cancelResponseFrom(res *usecase.CancelResult) cancelResponse {
	out := cancelResponse{
		AlreadyFree:        res.AlreadyFree,
		PreviousPlan:       res.PreviousPlan,
		NewPlan:            res.NewPlan,
		RemoteCancelFailed: res.RemoteCancelFailed,
	}
	if !res.CancelledAt.IsZero() {
		at := res.CancelledAt
		out.CancelledAt = &at
	}
	return out
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	var req cancelRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body", Code: "invalid_argument"})
		return
	}
	cancelRemote := req.ShouldCancelPayPal == nil || *req.ShouldCancelPayPal
	if len(req.Metadata) > 0 {
		logging.With(r.Context(), s.log).Info().
			Interface("metadata", req.Metadata).
			Msg("cancel request metadata")
	}
	res, err := s.reconUC.Cancel(r.Context(), AuthedUser(r.Context()), req.Reason, cancelRemote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponseFrom(res))
}

type switchToFreeRequest struct {
	Confirmed bool   `json:"confirmed"`
	Reason    string `json:"reason"`
}

func (s *Server) handleSwitchToFree(w http.ResponseWriter, r *http.Request) {
	var req switchToFreeRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body", Code: "invalid_argument"})
		return
	}
	res, err := s.reconUC.SwitchToFree(r.Context(), AuthedUser(r.Context()), req.Reason, req.Confirmed)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, cancelResponseFrom(res))
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	res, err := s.reconUC.SyncWithPayPal(r.Context(), AuthedUser(r.Context()))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"synced":  res.Synced,
		"changed": res.Changed,
		"from":    res.From,
		"to":      res.To,
		"reason":  res.Reason,
	})
}

type validateRequest struct {
	SubscriptionID string `json:"subscription_id"`
}

func (s *Server) handleValidate(w http.ResponseWriter, r *http.Request) {
	var req validateRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body", Code: "invalid_argument"})
		return
	}
	res, err := s.reconUC.ValidatePayPalSubscription(r.Context(), req.SubscriptionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"subscription_id": res.SubscriptionID,
		"valid":           res.Valid,
		"status":          res.Status,
		"plan_id":         res.PlanID,
	})
}

type checkoutConfirmRequest struct {
	OrderID         string `json:"order_id"`
	AuthorizationID string `json:"authorization_id"`
	SubscriptionID  string `json:"subscription_id"`
	Amount          string `json:"amount"`
	Currency        string `json:"currency"`
}

func (s *Server) handleCheckoutConfirm(w http.ResponseWriter, r *http.Request) {
	var req checkoutConfirmRequest
	if err := decodeBody(r, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed body", Code: "invalid_argument"})
		return
	}
	ucReq := usecase.ConfirmRequest{
		UserID:          AuthedUser(r.Context()),
		OrderID:         req.OrderID,
		AuthorizationID: req.AuthorizationID,
		SubscriptionID:  req.SubscriptionID,
		Amount:          req.Amount,
		Currency:        req.Currency,
	}
	var (
		res *usecase.ConfirmResult
		err error
	)
	switch {
	case req.OrderID != "":
		res, err = s.checkoutUC.Confirm(r.Context(), ucReq)
	case req.AuthorizationID != "":
		res, err = s.checkoutUC.ConfirmAuthorization(r.Context(), ucReq)
	default:
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "order_id or authorization_id is required", Code: "invalid_argument"})
		return
	}
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"capture_id": res.CaptureID,
		"plan":       string(res.Plan.Name),
		"status":     string(res.Record.Status),
	})
}

// handlePayPalWebhook reads the raw body (signature verification needs the
// exact bytes) and hands the delivery to the use case. Any nil-error outcome,
// duplicates included, is a 200 acknowledgement.
func (s *Server) handlePayPalWebhook(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "unreadable body", Code: "invalid_argument"})
		return
	}
	outcome, err := s.webhookUC.Receive(r.Context(), r.Header, body)
	if err != nil {
		logging.With(r.Context(), s.log).Warn().Err(err).Msg("webhook delivery rejected")
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"outcome": string(outcome)})
}

// decodeBody tolerates an empty body; fields keep their zero values.
func decodeBody(r *http.Request, v any) error {
	defer r.Body.Close()
	dec := json.NewDecoder(io.LimitReader(r.Body, 1<<20))
	if err := dec.Decode(v); err != nil && err != io.EOF {
		return err
	}
	return nil
}
