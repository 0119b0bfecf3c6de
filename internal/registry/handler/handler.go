package handler

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"

	"certify/internal/registry/models"
	"certify/pkg/digest"
	dErrors "certify/pkg/domain-errors"
	"certify/pkg/platform/httputil"
	"certify/pkg/platform/middleware/request"
	"certify/pkg/requestcontext"
	"certify/pkg/validation"
)

// DocumentField is the multipart form field carrying an uploaded document.
const DocumentField = "document"

// IdentityKeyParam is the query parameter naming the key on /registry routes.
const IdentityKeyParam = "identity_key"

// multipartOverhead is added to the document limit to leave room for part
// headers and boundaries.
const multipartOverhead = 64 * 1024

// Service defines the registry operations exposed over HTTP.
type Service interface {
	Insert(ctx context.Context, cmd models.InsertCommand) (*models.Receipt, error)
	Invalidate(ctx context.Context, key models.IdentityKey) (*models.Receipt, error)
	Lookup(ctx context.Context, key models.IdentityKey) (models.CredentialRecord, error)
	VerifyDigest(ctx context.Context, key models.IdentityKey, candidate string) (bool, error)
	IsRegistered(ctx context.Context, key models.IdentityKey) (bool, error)
	Commit(ctx context.Context, sequence uint64) (*models.Receipt, error)
}

// Option configures the Handler.
type Option func(*Handler)

// WithNetworkID sets the network identifier advertised on /network.
func WithNetworkID(id string) Option {
	return func(h *Handler) {
		h.networkID = id
	}
}

// WithDigestAlgorithm sets the algorithm used for uploaded documents.
func WithDigestAlgorithm(a digest.Algorithm) Option {
	return func(h *Handler) {
		h.algorithm = a
	}
}

// WithMaxDocumentSize caps uploaded documents in bytes.
func WithMaxDocumentSize(n int64) Option {
	return func(h *Handler) {
		if n > 0 {
			h.maxDocumentSize = n
		}
	}
}

// Handler serves the registry HTTP API.
type Handler struct {
	registry        Service
	requireIssuer   func(http.Handler) http.Handler
	logger          *slog.Logger
	networkID       string
	algorithm       digest.Algorithm
	maxDocumentSize int64
}

// New creates a registry Handler. requireIssuer guards Insert and Invalidate.
func New(registry Service, requireIssuer func(http.Handler) http.Handler, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		registry:        registry,
		requireIssuer:   requireIssuer,
		logger:          logger,
		algorithm:       digest.Default,
		maxDocumentSize: validation.MaxDocumentSize,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Register registers the registry routes with the chi router.
//
// Every keyed operation is served twice: under /credentials/{key} for people
// and under /registry with the key in the identity_key query parameter. The
// query form reaches every key, including the empty one, and is what the
// ledger client uses.
func (h *Handler) Register(r chi.Router) {
	r.Get("/network", h.handleNetwork)
	r.Get("/ledger/commits/{sequence}", h.handleGetCommit)
	r.Get("/credentials/{key}", h.byPath(h.handleLookup))
	r.Get("/credentials/{key}/registered", h.byPath(h.handleIsRegistered))
	r.Get("/registry/credential", h.byQuery(h.handleLookup))
	r.Get("/registry/registered", h.byQuery(h.handleIsRegistered))

	r.Group(func(r chi.Router) {
		r.Use(request.ContentTypeJSON, request.BodyLimit(validation.MaxBodySize))
		r.Post("/credentials/{key}/verify", h.byPath(h.handleVerify))
		r.Post("/registry/verify", h.byQuery(h.handleVerify))

		r.Group(func(r chi.Router) {
			r.Use(h.requireIssuer)
			r.Post("/credentials", h.handleInsert)
			r.Post("/credentials/{key}/invalidate", h.byPath(h.handleInvalidate))
			r.Post("/registry/invalidate", h.byQuery(h.handleInvalidate))
		})
	})

	r.Group(func(r chi.Router) {
		r.Use(request.BodyLimit(h.maxDocumentSize + multipartOverhead))
		r.Post("/credentials/{key}/verify-document", h.byPath(h.handleVerifyDocument))
		r.Post("/registry/verify-document", h.byQuery(h.handleVerifyDocument))
		r.Post("/digest", h.handleDigest)
	})
}

// keyedHandler serves a request about one identity key.
type keyedHandler func(w http.ResponseWriter, r *http.Request, key models.IdentityKey)

func (h *Handler) handleInsert(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[InsertRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	receipt, err := h.registry.Insert(ctx, req.Command())
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to insert credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusCreated, receipt)
}

func (h *Handler) handleInvalidate(w http.ResponseWriter, r *http.Request, key models.IdentityKey) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)


	receipt, err := h.registry.Invalidate(ctx, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to invalidate credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleLookup(w http.ResponseWriter, r *http.Request, key models.IdentityKey) {
	ctx := r.Context()

	record, err := h.registry.Lookup(ctx, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to look up credential",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, CredentialResponse(record))
}

func (h *Handler) handleIsRegistered(w http.ResponseWriter, r *http.Request, key models.IdentityKey) {
	ctx := r.Context()

	registered, err := h.registry.IsRegistered(ctx, key)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to check registration",
			"request_id", requestcontext.RequestID(ctx),
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, RegisteredResponse{
		IdentityKey: key.String(),
		Registered:  registered,
	})
}

func (h *Handler) handleVerify(w http.ResponseWriter, r *http.Request, key models.IdentityKey) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	req, ok := httputil.DecodeAndPrepare[VerifyRequest](w, r, h.logger, ctx, requestID)
	if !ok {
		return
	}

	valid, err := h.registry.VerifyDigest(ctx, key, req.DocumentDigest)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify credential",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, VerifyResponse{
		IdentityKey: key.String(),
		Valid:       valid,
	})
}

func (h *Handler) handleVerifyDocument(w http.ResponseWriter, r *http.Request, key models.IdentityKey) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	sum, _, ok := h.readDocument(w, r)
	if !ok {
		return
	}

	valid, err := h.registry.VerifyDigest(ctx, key, sum)
	if err != nil {
		h.logger.ErrorContext(ctx, "failed to verify document",
			"request_id", requestID,
			"error", err,
		)
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DocumentVerifyResponse{
		IdentityKey:    key.String(),
		Valid:          valid,
		Algorithm:      h.algorithm.String(),
		DocumentDigest: sum,
	})
}

func (h *Handler) handleDigest(w http.ResponseWriter, r *http.Request) {
	sum, size, ok := h.readDocument(w, r)
	if !ok {
		return
	}
	contentID, err := h.algorithm.CID(sum)
	if err != nil {
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, DigestResponse{
		Algorithm:      h.algorithm.String(),
		DocumentDigest: sum,
		CID:            contentID,
		Size:           size,
	})
}

func (h *Handler) handleGetCommit(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	sequence, err := strconv.ParseUint(chi.URLParam(r, "sequence"), 10, 64)
	if err != nil || sequence == 0 {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "sequence must be a positive integer"))
		return
	}

	receipt, err := h.registry.Commit(ctx, sequence)
	if err != nil {
		if !dErrors.HasCode(err, dErrors.CodeNotFound) {
			h.logger.ErrorContext(ctx, "failed to read commit",
				"request_id", requestcontext.RequestID(ctx),
				"sequence", sequence,
				"error", err,
			)
		}
		httputil.WriteError(w, err)
		return
	}
	httputil.WriteJSON(w, http.StatusOK, receipt)
}

func (h *Handler) handleNetwork(w http.ResponseWriter, _ *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, NetworkResponse{
		NetworkID:       h.networkID,
		DigestAlgorithm: h.algorithm.String(),
	})
}

// byPath takes the key from the {key} path parameter. chi routes on RawPath
// when the request carries one, in which case the parameter is still escaped.
func (h *Handler) byPath(next keyedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		key := chi.URLParam(r, "key")
		if r.URL.RawPath != "" {
			unescaped, err := url.PathUnescape(key)
			if err != nil {
				httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "malformed identity key"))
				return
			}
			key = unescaped
		}
		if err := validation.ValidateIdentityKey(key); err != nil {
			httputil.WriteError(w, err)
			return
		}
		next(w, r, models.IdentityKey(key))
	}
}

// byQuery takes the key from the identity_key query parameter. The parameter
// must be present but may be empty.
func (h *Handler) byQuery(next keyedHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		query := r.URL.Query()
		if !query.Has(IdentityKeyParam) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, IdentityKeyParam+" query parameter is required"))
			return
		}
		key := query.Get(IdentityKeyParam)
		if err := validation.ValidateIdentityKey(key); err != nil {
			httputil.WriteError(w, err)
			return
		}
		next(w, r, models.IdentityKey(key))
	}
}

// readDocument streams the multipart "document" part through the digest.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (string, int64, bool) {
	ctx := r.Context()
	requestID := requestcontext.RequestID(ctx)

	mediaType, _, err := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if err != nil || mediaType != "multipart/form-data" {
		httputil.WriteUnsupportedMediaType(w, "multipart/form-data")
		return "", 0, false
	}

	mr, err := r.MultipartReader()
	if err != nil {
		httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart body"))
		return "", 0, false
	}
	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "missing "+DocumentField+" field"))
			return "", 0, false
		}
		if err != nil {
			h.writeReadError(w, r, err)
			return "", 0, false
		}
		if part.FormName() != DocumentField {
			_ = part.Close()
			continue
		}

		counter := &countingReader{r: io.LimitReader(part, h.maxDocumentSize+1)}
		sum, err := h.algorithm.FromReader(counter)
		_ = part.Close()
		if err != nil {
			h.writeReadError(w, r, err)
			return "", 0, false
		}
		if counter.n > h.maxDocumentSize {
			h.logger.WarnContext(ctx, "uploaded document too large",
				"request_id", requestID,
				"limit", h.maxDocumentSize,
			)
			httputil.WritePayloadTooLarge(w, "document too large")
			return "", 0, false
		}
		return sum, counter.n, true
	}
}

func (h *Handler) writeReadError(w http.ResponseWriter, r *http.Request, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		httputil.WritePayloadTooLarge(w, "document too large")
		return
	}
	h.logger.WarnContext(r.Context(), "failed to read uploaded document",
		"request_id", requestcontext.RequestID(r.Context()),
		"error", err,
	)
	httputil.WriteError(w, dErrors.New(dErrors.CodeBadRequest, "invalid multipart body"))
}

type countingReader struct {
	r io.Reader
	n int64
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	c.n += int64(n)
	return n, err
}
