package registry

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	goerrors "github.com/goliatone/go-errors"
	glog "github.com/goliatone/go-logger/glog"

	"github.com/goliatone/go-tendlc/core"
)

const (
	pathBrand           = "/10dlc/brand"
	pathBrandByID       = "/10dlc/brand/{brandId}"
	pathCampaignBuilder = "/10dlc/campaignBuilder"
)

// Client talks to the 10DLC registry over HTTP.
type Client struct {
	http   *resty.Client
	retry  RetryPolicy
	logger core.Logger
}

type Option func(*Client)

func WithTransport(transport http.RoundTripper) Option {
	return func(c *Client) {
		if transport != nil {
			c.http.SetTransport(transport)
		}
	}
}

func WithRetryPolicy(policy RetryPolicy) Option {
	return func(c *Client) {
		c.retry = policy
	}
}

func WithLogger(logger core.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClient(cfg core.RegistryConfig, opts ...Option) *Client {
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")).
		SetTimeout(timeout).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json")
	if key := strings.TrimSpace(cfg.APIKey); key != "" {
		httpClient.SetAuthToken(key)
	}
	client := &Client{
		http:   httpClient,
		retry:  NewRetryPolicy(cfg.MaxAttempts, cfg.RetryBase(), cfg.MaxJitter()),
		logger: glog.Nop(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(client)
		}
	}
	client.retry.apply(httpClient)
	httpClient.AddRetryHook(client.logRetry)
	return client
}

type brandRequest struct {
	EntityType         string `json:"entityType"`
	DisplayName        string `json:"displayName"`
	CompanyName        string `json:"companyName,omitempty"`
	EIN                string `json:"ein,omitempty"`
	Phone              string `json:"phone,omitempty"`
	Street             string `json:"street,omitempty"`
	City               string `json:"city,omitempty"`
	State              string `json:"state,omitempty"`
	PostalCode         string `json:"postalCode,omitempty"`
	Country            string `json:"country"`
	Email              string `json:"email"`
	Website            string `json:"website,omitempty"`
	Vertical           string `json:"vertical"`
	WebhookURL         string `json:"webhookURL,omitempty"`
	WebhookFailoverURL string `json:"webhookFailoverURL,omitempty"`
}

type brandResponse struct {
	BrandID        string      `json:"brandId"`
	TCRBrandID     string      `json:"tcrBrandId"`
	Status         string      `json:"status"`
	IdentityStatus string      `json:"identityStatus"`
	FailureReasons reasonsList `json:"failureReasons"`
}

type campaignRequest struct {
	BrandID            string `json:"brandId"`
	UseCase            string `json:"usecase"`
	Description        string `json:"description"`
	MessageFlow        string `json:"messageFlow"`
	Sample1            string `json:"sample1,omitempty"`
	Sample2            string `json:"sample2,omitempty"`
	Sample3            string `json:"sample3,omitempty"`
	Sample4            string `json:"sample4,omitempty"`
	Sample5            string `json:"sample5,omitempty"`
	OptInKeywords      string `json:"optinKeywords"`
	OptOutKeywords     string `json:"optoutKeywords"`
	HelpKeywords       string `json:"helpKeywords"`
	OptInMessage       string `json:"optinMessage"`
	OptOutMessage      string `json:"optoutMessage"`
	HelpMessage        string `json:"helpMessage"`
	EmbeddedLink       bool   `json:"embeddedLink"`
	EmbeddedPhone      bool   `json:"embeddedPhone"`
	AgeGated           bool   `json:"ageGated"`
	DirectLending      bool   `json:"directLending"`
	SubscriberOptIn    bool   `json:"subscriberOptin"`
	SubscriberOptOut   bool   `json:"subscriberOptout"`
	SubscriberHelp     bool   `json:"subscriberHelp"`
	WebhookURL         string `json:"webhookURL,omitempty"`
	WebhookFailoverURL string `json:"webhookFailoverURL,omitempty"`
}

type campaignResponse struct {
	CampaignID     string `json:"campaignId"`
	CampaignStatus string `json:"campaignStatus"`
}

// reasonsList accepts a string, a list of strings or a list of objects
// carrying a description.
type reasonsList []string

func (r *reasonsList) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*r = nil
		return nil
	}
	var single string
	if err := json.Unmarshal(data, &single); err == nil {
		if strings.TrimSpace(single) != "" {
			*r = reasonsList{strings.TrimSpace(single)}
		}
		return nil
	}
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	out := make(reasonsList, 0, len(raw))
	for _, item := range raw {
		var text string
		if err := json.Unmarshal(item, &text); err == nil {
			if strings.TrimSpace(text) != "" {
				out = append(out, strings.TrimSpace(text))
			}
			continue
		}
		var obj struct {
			Description string `json:"description"`
			Reason      string `json:"reason"`
		}
		if err := json.Unmarshal(item, &obj); err != nil {
			return err
		}
		if text := strings.TrimSpace(obj.Description + obj.Reason); text != "" {
			out = append(out, text)
		}
	}
	*r = out
	return nil
}

func (r reasonsList) String() string {
	return strings.Join(r, "; ")
}

func (c *Client) SubmitBrand(ctx context.Context, in core.BrandSubmission) (core.BrandSubmissionResult, error) {
	body := brandRequest{
		EntityType:         in.EntityType,
		DisplayName:        in.DisplayName,
		CompanyName:        in.CompanyName,
		EIN:                in.EIN,
		Phone:              in.Phone,
		Street:             in.Street,
		City:               in.City,
		State:              in.State,
		PostalCode:         in.PostalCode,
		Country:            in.Country,
		Email:              in.Email,
		Website:            in.Website,
		Vertical:           in.Vertical,
		WebhookURL:         in.WebhookURL,
		WebhookFailoverURL: in.WebhookFailoverURL,
	}
	var out brandResponse
	if err := c.call(ctx, "submit_brand", http.MethodPost, pathBrand, nil, body, &out); err != nil {
		return core.BrandSubmissionResult{}, err
	}
	return core.BrandSubmissionResult{
		BrandID:    strings.TrimSpace(out.BrandID),
		TCRBrandID: strings.TrimSpace(out.TCRBrandID),
		Status:     strings.TrimSpace(out.Status),
	}, nil
}

func (c *Client) SubmitCampaign(ctx context.Context, in core.CampaignSubmission) (core.CampaignSubmissionResult, error) {
	brandID := strings.TrimSpace(in.BrandID)
	if brandID == "" {
		return core.CampaignSubmissionResult{}, registryError(
			"registry: brand id is required for campaign submission",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{metaOperation: "submit_campaign"},
		)
	}
	decl := in.Declaration
	body := campaignRequest{
		BrandID:            brandID,
		UseCase:            decl.UseCase,
		Description:        decl.Description,
		MessageFlow:        decl.MessageFlow,
		OptInKeywords:      strings.Join(decl.OptInKeywords, ","),
		OptOutKeywords:     strings.Join(decl.OptOutKeywords, ","),
		HelpKeywords:       strings.Join(decl.HelpKeywords, ","),
		OptInMessage:       decl.OptInMessage,
		OptOutMessage:      decl.OptOutMessage,
		HelpMessage:        decl.HelpMessage,
		EmbeddedLink:       decl.EmbeddedLink,
		EmbeddedPhone:      decl.EmbeddedPhone,
		AgeGated:           decl.AgeGated,
		DirectLending:      decl.DirectLending,
		SubscriberOptIn:    decl.SubscriberOptIn,
		SubscriberOptOut:   decl.SubscriberOptOut,
		SubscriberHelp:     decl.SubscriberHelp,
		WebhookURL:         decl.WebhookURL,
		WebhookFailoverURL: decl.WebhookFailoverURL,
	}
	samples := []*string{&body.Sample1, &body.Sample2, &body.Sample3, &body.Sample4, &body.Sample5}
	for idx, sample := range decl.SampleMessages {
		if idx >= len(samples) {
			break
		}
		*samples[idx] = sample
	}

	var out campaignResponse
	if err := c.call(ctx, "submit_campaign", http.MethodPost, pathCampaignBuilder, nil, body, &out); err != nil {
		return core.CampaignSubmissionResult{}, err
	}
	return core.CampaignSubmissionResult{
		CampaignID: strings.TrimSpace(out.CampaignID),
		Status:     strings.TrimSpace(out.CampaignStatus),
	}, nil
}

func (c *Client) GetBrandStatus(ctx context.Context, brandID string) (core.BrandStatusResult, error) {
	brandID = strings.TrimSpace(brandID)
	if brandID == "" {
		return core.BrandStatusResult{}, registryError(
			"registry: brand id is required",
			goerrors.CategoryBadInput,
			http.StatusBadRequest,
			map[string]any{metaOperation: "get_brand_status"},
		)
	}
	var out brandResponse
	params := map[string]string{"brandId": brandID}
	if err := c.call(ctx, "get_brand_status", http.MethodGet, pathBrandByID, params, nil, &out); err != nil {
		return core.BrandStatusResult{}, err
	}
	resolved := strings.TrimSpace(out.BrandID)
	if resolved == "" {
		resolved = brandID
	}
	return core.BrandStatusResult{
		BrandID:        resolved,
		Status:         strings.TrimSpace(out.Status),
		IdentityStatus: strings.TrimSpace(out.IdentityStatus),
		FailureReason:  out.FailureReasons.String(),
	}, nil
}

func (c *Client) call(
	ctx context.Context,
	operation string,
	method string,
	path string,
	pathParams map[string]string,
	body any,
	result any,
) error {
	if c == nil || c.http == nil {
		return registryError("registry: client is not configured", goerrors.CategoryInternal, http.StatusInternalServerError, nil)
	}
	if ctx == nil {
		ctx = context.Background()
	}
	var failure errorBody
	req := c.http.R().
		SetContext(ctx).
		SetResult(result).
		SetError(&failure)
	if len(pathParams) > 0 {
		req.SetPathParams(pathParams)
	}
	if body != nil {
		req.SetBody(body)
	}
	resp, err := req.Execute(method, path)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return transportFailure(operation, err)
	}
	if resp.IsError() {
		return responseError(operation, resp.StatusCode(), failure)
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return responseError(operation, resp.StatusCode(), errorBody{})
	}
	return nil
}

// logRetry runs after every attempt that matched a retry condition.
func (c *Client) logRetry(resp *resty.Response, err error) {
	if c.logger == nil {
		return
	}
	fields := []any{}
	if resp != nil {
		if resp.Request != nil {
			fields = append(fields, "attempt", resp.Request.Attempt, "url", resp.Request.URL)
		}
		if resp.RawResponse != nil {
			fields = append(fields, "status", resp.StatusCode())
		}
	}
	if err != nil {
		fields = append(fields, "error", fmt.Sprint(err))
	}
	c.logger.Warn("registry call retrying", fields...)
}

var _ core.RegistryClient = (*Client)(nil)
