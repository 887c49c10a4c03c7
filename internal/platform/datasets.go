package platform

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"
)

// DataSetType distinguishes streaming datasets from one-shot uploads.
type DataSetType string

// Dataset types.
const (
	DataSetTypeContinuous DataSetType = "continuous"
	DataSetTypeNormal     DataSetType = "normal"
)

// Dataset is a server-side upload destination. UploadID is empty until the
// dataset has been resolved against the server.
type Dataset struct {
	UploadID      string
	ClientName    string
	ClientVersion string
	DataSetType   DataSetType
	Deduplicator  Deduplicator
	CreatedTime   time.Time
}

// Matches reports whether d and other describe the same destination. The
// upload id and timestamps are ignored. An unknown deduplicator on either
// side matches nothing.
func (d Dataset) Matches(other Dataset) bool {
	if d.Deduplicator == DeduplicatorUnknown || other.Deduplicator == DeduplicatorUnknown {
		return false
	}

	return d.ClientName == other.ClientName &&
		d.ClientVersion == other.ClientVersion &&
		d.Deduplicator == other.Deduplicator
}

// datasetResponse mirrors the dataset JSON.
// Unexported; callers use Dataset via toDataset() normalization.
type datasetResponse struct {
	UploadID     string             `json:"uploadId"`
	Client       *datasetClient     `json:"client"`
	DataSetType  string             `json:"dataSetType"`
	Deduplicator *deduplicatorFacet `json:"deduplicator"`
	CreatedTime  string             `json:"createdTime"`
}

type datasetClient struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

type deduplicatorFacet struct {
	Name string `json:"name"`
}

// createDatasetRequest is the POST body for dataset creation.
type createDatasetRequest struct {
	DataSetType  DataSetType       `json:"dataSetType"`
	Client       datasetClient     `json:"client"`
	Deduplicator deduplicatorFacet `json:"deduplicator"`
}

// createDatasetResponse nests the created dataset under "data".
type createDatasetResponse struct {
	Data *datasetResponse `json:"data"`
}

func (r *datasetResponse) toDataset(logger *slog.Logger) Dataset {
	ds := Dataset{
		UploadID:    r.UploadID,
		DataSetType: DataSetType(r.DataSetType),
	}

	if r.Client != nil {
		ds.ClientName = r.Client.Name
		ds.ClientVersion = r.Client.Version
	}

	if r.Deduplicator != nil {
		d, err := ParseDeduplicator(r.Deduplicator.Name)
		if err != nil {
			logger.Debug("dataset has unrecognized deduplicator",
				slog.String("upload_id", r.UploadID),
				slog.String("deduplicator", r.Deduplicator.Name),
			)
		}

		ds.Deduplicator = d
	}

	if r.CreatedTime != "" {
		if t, err := time.Parse(time.RFC3339, r.CreatedTime); err == nil {
			ds.CreatedTime = t
		}
	}

	return ds
}

// DatasetResolver finds or creates the upload destination for a client.
type DatasetResolver struct {
	client *Client
	logger *slog.Logger
}

// NewDatasetResolver creates a resolver that sends requests through c.
func NewDatasetResolver(c *Client, logger *slog.Logger) *DatasetResolver {
	if logger == nil {
		logger = slog.Default()
	}

	return &DatasetResolver{client: c, logger: logger}
}

func datasetsPath(userID string) string {
	return "/v1/users/" + url.PathEscape(userID) + "/data_sets"
}

// List returns the user's non-deleted datasets for clientName (all clients
// when empty). The server answers 404 when the user has no datasets.
func (r *DatasetResolver) List(ctx context.Context, sess *Session, clientName string) ([]Dataset, error) {
	if err := r.client.gate.OfflineOrUnauthenticated(); err != nil {
		return nil, err
	}

	if sess == nil {
		return nil, ErrNotLoggedIn
	}

	q := url.Values{}
	q.Set("deleted", "false")

	if clientName != "" {
		q.Set("client.name", clientName)
	}

	resp, err := r.client.Do(ctx, &Request{
		Method:        http.MethodGet,
		Path:          datasetsPath(sess.UserID),
		Query:         q,
		Session:       sess,
		Authenticated: true,
	})
	if err != nil {
		return nil, err
	}

	var raw []datasetResponse
	if err := decodeJSON(resp.Body, &raw); err != nil {
		return nil, err
	}

	out := make([]Dataset, 0, len(raw))
	for i := range raw {
		out = append(out, raw[i].toDataset(r.logger))
	}

	return out, nil
}

// Resolve returns the first server dataset matching wanted, creating one
// when none matches. A failed listing is only treated as "no match" when it
// is ErrDataNotFound; every other failure is returned without creating.
func (r *DatasetResolver) Resolve(ctx context.Context, sess *Session, wanted Dataset) (Dataset, error) {
	if err := r.client.gate.OfflineOrUnauthenticated(); err != nil {
		return Dataset{}, err
	}

	existing, err := r.List(ctx, sess, wanted.ClientName)

	switch {
	case err == nil:
		for _, ds := range existing {
			if ds.Matches(wanted) {
				r.logger.Debug("resolved existing dataset",
					slog.String("upload_id", ds.UploadID),
					slog.String("client_name", ds.ClientName),
				)

				return ds, nil
			}
		}
	case Kind(err) == ErrDataNotFound:
		r.logger.Debug("no datasets on server, creating",
			slog.String("client_name", wanted.ClientName),
		)
	default:
		return Dataset{}, err
	}

	return r.create(ctx, sess, wanted)
}

func (r *DatasetResolver) create(ctx context.Context, sess *Session, wanted Dataset) (Dataset, error) {
	if wanted.Deduplicator == DeduplicatorUnknown {
		return Dataset{}, &APIError{Message: "dataset has no deduplicator", Err: ErrInternal}
	}

	dsType := wanted.DataSetType
	if dsType == "" {
		dsType = DataSetTypeContinuous
	}

	body, err := json.Marshal(createDatasetRequest{
		DataSetType:  dsType,
		Client:       datasetClient{Name: wanted.ClientName, Version: wanted.ClientVersion},
		Deduplicator: deduplicatorFacet{Name: wanted.Deduplicator.String()},
	})
	if err != nil {
		return Dataset{}, &APIError{Err: ErrInternal, Cause: fmt.Errorf("encoding dataset: %w", err)}
	}

	resp, err := r.client.Do(ctx, &Request{
		Method:        http.MethodPost,
		Path:          datasetsPath(sess.UserID),
		Body:          body,
		Session:       sess,
		Authenticated: true,
	})
	if err != nil {
		return Dataset{}, err
	}

	var created createDatasetResponse
	if err := decodeJSON(resp.Body, &created); err != nil {
		return Dataset{}, err
	}

	if created.Data == nil || created.Data.UploadID == "" {
		return Dataset{}, &APIError{StatusCode: resp.StatusCode, Message: "created dataset has no uploadId", Err: ErrBadJSONInResponse}
	}

	ds := created.Data.toDataset(r.logger)

	// Older servers echo only the id.
	if ds.ClientName == "" {
		ds.ClientName = wanted.ClientName
		ds.ClientVersion = wanted.ClientVersion
	}

	if ds.Deduplicator == DeduplicatorUnknown {
		ds.Deduplicator = wanted.Deduplicator
	}

	if ds.DataSetType == "" {
		ds.DataSetType = dsType
	}

	r.logger.Info("created dataset",
		slog.String("upload_id", ds.UploadID),
		slog.String("client_name", ds.ClientName),
		slog.String("client_version", ds.ClientVersion),
	)

	return ds, nil
}
