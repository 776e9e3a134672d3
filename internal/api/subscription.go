package api

import (
	"net/http"
	"net/mail"
	"slices"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kartevonmorgen/kvmsync/internal/datastore"
	"github.com/kartevonmorgen/kvmsync/internal/errors"
)

var (
	validIntervals = []string{"daily", "weekly", "monthly"}
	validTypes     = []string{"creation", "update", "tag_change"}
	validLanguages = []string{"en", "de"}
)

// CreateSubscriptionRequest is the POST /v1/subscriptions payload.
type CreateSubscriptionRequest struct {
	Title            string  `json:"title"`
	Email            string  `json:"email"`
	LatMin           float64 `json:"lat_min"`
	LonMin           float64 `json:"lon_min"`
	LatMax           float64 `json:"lat_max"`
	LonMax           float64 `json:"lon_max"`
	Interval         string  `json:"interval"`
	SubscriptionType string  `json:"subscription_type"`
	Language         string  `json:"language"`
}

// SubscriptionResponse is the wire form of one subscription.
type SubscriptionResponse struct {
	ID               string  `json:"id"`
	Title            string  `json:"title"`
	Email            string  `json:"email"`
	LatMin           float64 `json:"lat_min"`
	LonMin           float64 `json:"lon_min"`
	LatMax           float64 `json:"lat_max"`
	LonMax           float64 `json:"lon_max"`
	Interval         string  `json:"interval"`
	SubscriptionType string  `json:"subscription_type"`
	Language         string  `json:"language"`
	IsActive         bool    `json:"is_active"`
}

func toResponse(sub *datastore.SubscriptionRecord) SubscriptionResponse {
	return SubscriptionResponse{
		ID:               sub.ID,
		Title:            sub.Title,
		Email:            sub.Email,
		LatMin:           sub.LatMin,
		LonMin:           sub.LonMin,
		LatMax:           sub.LatMax,
		LonMax:           sub.LonMax,
		Interval:         sub.Interval,
		SubscriptionType: sub.SubscriptionType,
		Language:         sub.Language,
		IsActive:         sub.IsActive,
	}
}

func (r *CreateSubscriptionRequest) validate() error {
	if r.Title == "" {
		return errors.Newf("title is required").Category(errors.CategoryValidation).Build()
	}
	if _, err := mail.ParseAddress(r.Email); err != nil {
		return errors.Newf("invalid email address").Category(errors.CategoryValidation).Build()
	}
	if r.LatMin >= r.LatMax || r.LonMin >= r.LonMax {
		return errors.Newf("bounding box must have min < max on both axes").Category(errors.CategoryValidation).Build()
	}
	if !slices.Contains(validIntervals, r.Interval) {
		return errors.Newf("interval must be one of %v", validIntervals).Category(errors.CategoryValidation).Build()
	}
	if !slices.Contains(validTypes, r.SubscriptionType) {
		return errors.Newf("subscription_type must be one of %v", validTypes).Category(errors.CategoryValidation).Build()
	}
	if r.Language != "" && !slices.Contains(validLanguages, r.Language) {
		return errors.Newf("language must be one of %v", validLanguages).Category(errors.CategoryValidation).Build()
	}
	return nil
}

// handleCreateSubscription creates a new, inactive subscription and mails
// an activation link. An identical existing subscription answers 409.
func (s *Server) handleCreateSubscription(c echo.Context) error {
	var req CreateSubscriptionRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "invalid request body"})
	}
	if err := req.validate(); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": err.Error()})
	}

	language := req.Language
	if language == "" {
		language = "en"
	}

	sub := &datastore.SubscriptionRecord{
		Title:            req.Title,
		Email:            req.Email,
		LatMin:           req.LatMin,
		LonMin:           req.LonMin,
		LatMax:           req.LatMax,
		LonMax:           req.LonMax,
		Interval:         req.Interval,
		SubscriptionType: req.SubscriptionType,
		Language:         language,
		IsActive:         false,
	}

	ctx := c.Request().Context()
	if err := s.Store.CreateSubscription(ctx, sub); err != nil {
		if errors.IsCategory(err, errors.CategoryConflict) {
			logger.Warn("Similar subscription already exists", "email", req.Email)
			return c.JSON(http.StatusConflict, map[string]string{
				"message": "Similar subscription already exists",
			})
		}
		logger.Error("Failed to create subscription", "email", req.Email, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{
			"message": "Failed to create subscription",
		})
	}

	token := uuid.NewString()
	s.tokens.SetDefault(token, sub.ID)

	// Delivery failures only lose the activation mail, not the
	// subscription, so they are logged and swallowed.
	if err := s.Sender.SendActivation(ctx, sub, token); err != nil {
		logger.Error("Failed to send activation email",
			"subscription_id", sub.ID, "error", err)
	}

	return c.JSON(http.StatusOK, toResponse(sub))
}

// handleListSubscriptions returns all subscriptions for an email address.
func (s *Server) handleListSubscriptions(c echo.Context) error {
	email := c.QueryParam("email")
	if email == "" {
		return c.JSON(http.StatusBadRequest, map[string]string{"message": "email query parameter is required"})
	}

	subs, err := s.Store.ListSubscriptions(c.Request().Context(), email)
	if err != nil {
		logger.Error("Failed to list subscriptions", "email", email, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to list subscriptions"})
	}

	out := make([]SubscriptionResponse, 0, len(subs))
	for i := range subs {
		out = append(out, toResponse(&subs[i]))
	}
	return c.JSON(http.StatusOK, out)
}

// handleActivateSubscription resolves an activation token and flips the
// subscription active. Answers HTML because the link lands in a browser.
func (s *Server) handleActivateSubscription(c echo.Context) error {
	token := c.Param("token")

	id, found := s.tokens.Get(token)
	if !found {
		return c.HTML(http.StatusNotFound, activationExpiredPage)
	}
	subID, ok := id.(string)
	if !ok {
		return c.HTML(http.StatusNotFound, activationExpiredPage)
	}

	ctx := c.Request().Context()
	sub, err := s.Store.GetSubscription(ctx, subID)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.HTML(http.StatusNotFound, activationExpiredPage)
		}
		logger.Error("Failed to load subscription for activation",
			"subscription_id", subID, "error", err)
		return c.HTML(http.StatusInternalServerError, errorPage)
	}

	if sub.IsActive {
		return c.HTML(http.StatusOK, alreadyActivePage)
	}

	if err := s.Store.SetSubscriptionActive(ctx, subID, true); err != nil {
		logger.Error("Failed to activate subscription",
			"subscription_id", subID, "error", err)
		return c.HTML(http.StatusInternalServerError, errorPage)
	}
	s.tokens.Delete(token)

	logger.Info("Subscription activated", "subscription_id", subID)
	return c.HTML(http.StatusOK, activatedPage)
}

// handleUnsubscribe deactivates a subscription by ID.
func (s *Server) handleUnsubscribe(c echo.Context) error {
	id := c.Param("id")

	err := s.Store.SetSubscriptionActive(c.Request().Context(), id, false)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Subscription not found"})
		}
		logger.Error("Failed to unsubscribe", "subscription_id", id, "error", err)
		return c.HTML(http.StatusInternalServerError, errorPage)
	}

	logger.Info("Subscription deactivated", "subscription_id", id)
	return c.HTML(http.StatusOK, unsubscribedPage)
}

// handleDeleteSubscription removes a subscription entirely.
func (s *Server) handleDeleteSubscription(c echo.Context) error {
	id := c.Param("id")

	err := s.Store.DeleteSubscription(c.Request().Context(), id)
	if err != nil {
		if errors.IsNotFound(err) {
			return c.JSON(http.StatusNotFound, map[string]string{"message": "Subscription not found"})
		}
		logger.Error("Failed to delete subscription", "subscription_id", id, "error", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"message": "Failed to delete subscription"})
	}
	return c.NoContent(http.StatusNoContent)
}

const (
	activatedPage = `<html><head><title>Subscription Activated</title></head>
<body><h2>Your subscription is activated successfully!</h2></body></html>`

	alreadyActivePage = `<html><head><title>Subscription Activated</title></head>
<body><h2>Your subscription is already active.</h2></body></html>`

	activationExpiredPage = `<html><head><title>Link Expired</title></head>
<body><h2>This activation link is invalid or has expired.</h2></body></html>`

	unsubscribedPage = `<html><head><title>Unsubscribed</title></head>
<body><h2>You are unsubscribed successfully!</h2></body></html>`

	errorPage = `<html><head><title>Error</title></head>
<body><h2>Something went wrong. Please try again later.</h2></body></html>`
)
