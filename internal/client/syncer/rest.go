package syncer

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/dmitrijs2005/tripkeeper/internal/client/models"
	"github.com/dmitrijs2005/tripkeeper/internal/common"
)

// TokenFunc supplies the bearer token for a request. An empty token sends
// the request unauthenticated.
type TokenFunc func(ctx context.Context) (string, error)

const maxErrorBody = 512

var segments = map[models.EntityKind]string{
	models.KindLocation:       "locations",
	models.KindActivity:       "activities",
	models.KindTransportation: "transportation",
	models.KindLodging:        "lodging",
	models.KindJournal:        "journal",
	models.KindPhoto:          "photos",
	models.KindPhotoAlbum:     "albums",
}

// RESTReplayer replays queued changes as JSON requests:
//
//	trip:       POST /trips, PUT|DELETE /trips/{id}
//	sub-entity: POST /trips/{trip}/{kind}, PUT|DELETE /trips/{trip}/{kind}/{id}
type RESTReplayer struct {
	client *resty.Client
	token  TokenFunc
}

var _ Replayer = (*RESTReplayer)(nil)

func NewRESTReplayer(baseURL string, timeout time.Duration, token TokenFunc) *RESTReplayer {
	c := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetHeader("Content-Type", "application/json").
		SetHeader("Accept", "application/json").
		SetTimeout(timeout)

	return &RESTReplayer{client: c, token: token}
}

func route(op models.SyncOperation) (method, path string, err error) {
	switch op.Type {
	case models.OpCreate:
		method = http.MethodPost
	case models.OpUpdate:
		method = http.MethodPut
	case models.OpDelete:
		method = http.MethodDelete
	default:
		return "", "", fmt.Errorf("%w: operation type %q", common.ErrInvalidEntity, op.Type)
	}
	if op.Type != models.OpCreate && op.EntityID == "" {
		return "", "", fmt.Errorf("%w: %s %s without entity id", common.ErrInvalidEntity, op.Type, op.EntityType)
	}

	if op.EntityType == models.KindTrip {
		path = "/trips"
	} else {
		seg, ok := segments[op.EntityType]
		if !ok {
			return "", "", fmt.Errorf("%w: entity type %q", common.ErrInvalidEntity, op.EntityType)
		}
		if op.TripID == "" {
			return "", "", fmt.Errorf("%w: %s without trip id", common.ErrInvalidTrip, op.EntityType)
		}
		path = "/trips/" + op.TripID + "/" + seg
	}
	if op.Type != models.OpCreate {
		path += "/" + op.EntityID
	}
	return method, path, nil
}

func (r *RESTReplayer) Replay(ctx context.Context, op models.SyncOperation) error {
	method, path, err := route(op)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrRejected, err)
	}

	req := r.client.R().SetContext(ctx)
	if r.token != nil {
		tok, err := r.token(ctx)
		if err != nil {
			return fmt.Errorf("session token: %w", err)
		}
		if tok != "" {
			req.SetAuthToken(tok)
		}
	}
	if op.Type != models.OpDelete && len(op.Payload) > 0 {
		req.SetBody([]byte(op.Payload))
	}

	resp, err := req.Execute(method, path)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	if resp.IsSuccess() {
		return nil
	}
	// already gone
	if op.Type == models.OpDelete && (resp.StatusCode() == http.StatusNotFound || resp.StatusCode() == http.StatusGone) {
		return nil
	}

	body := resp.String()
	if len(body) > maxErrorBody {
		body = body[:maxErrorBody]
	}
	return &StatusError{Code: resp.StatusCode(), Method: method, Path: path, Body: body}
}
