package server

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	ragerr "github.com/danh12004/KLTN/pkg/errors"
	"github.com/danh12004/KLTN/pkg/rag"
	"github.com/danh12004/KLTN/pkg/store"
)

func (s *Server) registerRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-stores",
		Method:      http.MethodGet,
		Path:        "/api/v1/stores",
		Summary:     "List configured stores",
		Tags:        []string{"stores"},
	}, s.handleListStores)

	huma.Register(s.api, huma.Operation{
		OperationID: "warm-store",
		Method:      http.MethodPost,
		Path:        "/api/v1/stores/{name}/warm",
		Summary:     "Load or build a store",
		Tags:        []string{"stores"},
	}, s.handleWarmStore)

	huma.Register(s.api, huma.Operation{
		OperationID: "search-store",
		Method:      http.MethodGet,
		Path:        "/api/v1/stores/{name}/search",
		Summary:     "Nearest chunks with distances",
		Tags:        []string{"retrieval"},
	}, s.handleSearch)

	huma.Register(s.api, huma.Operation{
		OperationID: "retrieve-context",
		Method:      http.MethodGet,
		Path:        "/api/v1/stores/{name}/retrieve",
		Summary:     "Joined context for an advisory prompt",
		Tags:        []string{"retrieval"},
	}, s.handleRetrieve)
}

// --- Request/Response types for huma ---

type listStoresOutput struct {
	Body struct {
		Stores []store.Info `json:"stores"`
	}
}

type storeNameInput struct {
	Name string `path:"name"`
}

type warmStoreOutput struct {
	Body store.Info
}

type queryInput struct {
	Name  string `path:"name"`
	Query string `query:"q" required:"true" minLength:"1" doc:"Question text"`
	K     int    `query:"k" default:"3" minimum:"0" maximum:"100" doc:"Number of chunks"`
}

type searchOutput struct {
	Body struct {
		Results []rag.Result `json:"results"`
	}
}

type retrieveOutput struct {
	Body struct {
		Context string `json:"context" doc:"Chunks joined with the separator, or the unavailable message"`
	}
}

// --- Handlers ---

func (s *Server) handleListStores(_ context.Context, _ *struct{}) (*listStoresOutput, error) {
	out := &listStoresOutput{}
	out.Body.Stores = s.engine.Describe()
	return out, nil
}

func (s *Server) handleWarmStore(ctx context.Context, input *storeNameInput) (*warmStoreOutput, error) {
	h, err := s.engine.GetStore(ctx, input.Name)
	if err != nil {
		return nil, s.apiError(err)
	}
	state, _ := s.engine.Status(input.Name)
	return &warmStoreOutput{Body: store.Info{
		Name:      h.Name,
		State:     state.String(),
		Documents: h.Count(),
		Dimension: h.Dimension(),
	}}, nil
}

func (s *Server) handleSearch(ctx context.Context, input *queryInput) (*searchOutput, error) {
	results, err := s.engine.Search(ctx, input.Name, input.Query, input.K)
	if err != nil {
		return nil, s.apiError(err)
	}
	out := &searchOutput{}
	out.Body.Results = results
	return out, nil
}

func (s *Server) handleRetrieve(ctx context.Context, input *queryInput) (*retrieveOutput, error) {
	out := &retrieveOutput{}
	out.Body.Context = s.engine.Retrieve(ctx, input.Name, input.Query, input.K)
	return out, nil
}

// apiError maps an engine error to an HTTP error by its code.
func (s *Server) apiError(err error) error {
	status := ragerr.HTTPStatus(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "status", status, "code", ragerr.CodeOf(err), "error", err)
	}
	return huma.NewError(status, err.Error())
}
