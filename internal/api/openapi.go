package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/getkin/kin-openapi/openapi3filter"
	"github.com/getkin/kin-openapi/routers/legacy"

	"github.com/schmackofatz/recipes/core/logx"
)

// RecipeStreamPath is the streaming endpoint.
const RecipeStreamPath = "/api/recipes/stream"

// Document describes the public API.
func Document(version string) *openapi3.T {
	if version == "" {
		version = "dev"
	}
	errSchema := openapi3.NewObjectSchema().WithProperty("error", openapi3.NewStringSchema().WithEnum(
		CodeInvalidRequest, CodeUpstreamError, CodeMalformedEvent, CodeServerDraining,
	))
	errResponse := func(desc string) *openapi3.ResponseRef {
		return &openapi3.ResponseRef{Value: openapi3.NewResponse().WithDescription(desc).WithJSONSchema(errSchema)}
	}

	language := openapi3.NewQueryParameter("language").
		WithDescription(`prompt language; "en" selects English, anything else German`).
		WithSchema(openapi3.NewStringSchema())

	stream := &openapi3.Operation{
		OperationID: "streamRecipes",
		Summary:     "Stream two recipe suggestions for a list of ingredients",
		Parameters:  openapi3.Parameters{{Value: language}},
		RequestBody: &openapi3.RequestBodyRef{Value: openapi3.NewRequestBody().
			WithRequired(true).
			WithJSONSchema(openapi3.NewArraySchema().WithItems(openapi3.NewStringSchema()))},
		Responses: openapi3.NewResponses(
			openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: openapi3.NewResponse().
				WithDescription("raw Markdown text chunks, flushed as they arrive").
				WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/event-stream"}))}),
			openapi3.WithStatus(http.StatusBadRequest, errResponse("request body is not a JSON array of strings")),
			openapi3.WithStatus(http.StatusBadGateway, errResponse("upstream failed before any text was produced")),
			openapi3.WithStatus(http.StatusServiceUnavailable, errResponse("server is draining")),
		),
	}

	return &openapi3.T{
		OpenAPI: "3.0.3",
		Info: &openapi3.Info{
			Title:   "schmackofatz recipes",
			Version: version,
		},
		Paths: openapi3.NewPaths(
			openapi3.WithPath(RecipeStreamPath, &openapi3.PathItem{Post: stream}),
		),
	}
}

// OpenAPIHandler serves doc as JSON.
func OpenAPIHandler(doc *openapi3.T) http.HandlerFunc {
	b, err := json.Marshal(doc)
	return func(w http.ResponseWriter, r *http.Request) {
		if err != nil {
			http.Error(w, "openapi unavailable", http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write(b)
	}
}

// ValidateRequests rejects requests to documented routes whose parameters or
// body do not match doc. Undocumented routes pass through.
func ValidateRequests(doc *openapi3.T) (func(http.Handler) http.Handler, error) {
	router, err := legacy.NewRouter(doc)
	if err != nil {
		return nil, fmt.Errorf("openapi router: %w", err)
	}
	opts := &openapi3filter.Options{AuthenticationFunc: openapi3filter.NoopAuthenticationFunc}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			route, params, err := router.FindRoute(r)
			if err != nil {
				next.ServeHTTP(w, r)
				return
			}
			body, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBody+1))
			if err != nil || len(body) > maxRequestBody {
				writeError(w, http.StatusBadRequest, CodeInvalidRequest)
				return
			}
			if r.Header.Get("Content-Type") == "" {
				r.Header.Set("Content-Type", "application/json")
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			in := &openapi3filter.RequestValidationInput{Request: r, PathParams: params, Route: route, Options: opts}
			if err := openapi3filter.ValidateRequest(r.Context(), in); err != nil {
				logx.Log.Debug().Err(err).Str("url", r.URL.String()).Msg("request validation")
				writeError(w, http.StatusBadRequest, CodeInvalidRequest)
				return
			}
			r.Body = io.NopCloser(bytes.NewReader(body))
			next.ServeHTTP(w, r)
		})
	}, nil
}
