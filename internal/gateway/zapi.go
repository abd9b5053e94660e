package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/loopcrm/channels-server/internal/domain/provider"
	"go.uber.org/zap"
)

// zapiClient talks to the hosted SaaS gateway. Instance creation requires the
// integrator/partner token as a bearer credential; the instance-scoped tokens
// returned by the creation call are for ordinary per-instance operations and
// must never be presented on creation (confusing the two is the most common
// rejection case).
type zapiClient struct {
	http            *resty.Client
	integratorToken string
	log             *zap.Logger
}

func newZAPIClient(cfg *provider.Config, opts Options) *zapiClient {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(opts.Timeout)

	return &zapiClient{
		http:            client,
		integratorToken: cfg.AccountToken,
		log:             opts.Log.Named("zapi"),
	}
}

type zapiCreateRequest struct {
	Name                     string `json:"name"`
	DeliveryCallbackURL      string `json:"deliveryCallbackUrl"`
	ReceivedCallbackURL      string `json:"receivedCallbackUrl"`
	DisconnectedCallbackURL  string `json:"disconnectedCallbackUrl"`
	ConnectedCallbackURL     string `json:"connectedCallbackUrl"`
	MessageStatusCallbackURL string `json:"messageStatusCallbackUrl"`
}

type zapiCreateResponse struct {
	ID        string `json:"id"`
	Token     string `json:"token"`
	QRCode    string `json:"qrcode"`
	Connected bool   `json:"connected"`
	Phone     string `json:"phone"`
}

// CreateInstance provisions an on-demand instance.
//
// The response must carry both the remote instance ID and its token; one
// without the other is a protocol violation and the whole outcome is a hard
// failure. A missing QR code is fine — this provider often delivers the first
// QR via webhook only.
func (c *zapiClient) CreateInstance(ctx context.Context, req CreateInstanceRequest) (*Outcome, error) {
	body := zapiCreateRequest{
		Name:                     req.Name,
		DeliveryCallbackURL:      req.CallbackURL + "/delivery",
		ReceivedCallbackURL:      req.CallbackURL + "/received",
		DisconnectedCallbackURL:  req.CallbackURL + "/disconnected",
		ConnectedCallbackURL:     req.CallbackURL + "/connected",
		MessageStatusCallbackURL: req.CallbackURL + "/message-status",
	}

	var parsed zapiCreateResponse
	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.integratorToken).
		SetBody(body).
		SetResult(&parsed).
		Post("/instances/integrator/on-demand")
	if err != nil {
		return nil, classifyTransport(err)
	}
	if resp.IsError() {
		return nil, classifyRejection(resp.StatusCode(), resp.Body())
	}

	if parsed.ID == "" {
		return nil, &IncompleteResponseError{Missing: "id"}
	}
	if parsed.Token == "" {
		return nil, &IncompleteResponseError{Missing: "token"}
	}

	out := &Outcome{
		Metadata:            append([]byte(nil), resp.Body()...),
		QRPayload:           parsed.QRCode,
		RemoteInstanceID:    parsed.ID,
		RemoteInstanceToken: parsed.Token,
		Connected:           parsed.Connected,
		PhoneNumber:         parsed.Phone,
	}

	c.log.Debug("instance created",
		zap.String("instance_name", req.Name),
		zap.String("remote_id", parsed.ID),
		zap.Bool("qr", out.QRPayload != ""),
	)
	return out, nil
}

// SubscribeInstance activates callbacks for a just-created instance using a
// URL built from the returned id/token pair plus the same integrator token.
func (c *zapiClient) SubscribeInstance(ctx context.Context, instanceID, instanceToken string) error {
	path := fmt.Sprintf("/instances/%s/token/%s/integrator/on-demand/subscription", instanceID, instanceToken)

	resp, err := c.http.R().
		SetContext(ctx).
		SetAuthToken(c.integratorToken).
		Post(path)
	if err != nil {
		return classifyTransport(err)
	}
	if resp.IsError() {
		return classifyRejection(resp.StatusCode(), resp.Body())
	}
	return nil
}
