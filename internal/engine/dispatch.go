package engine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"

	"github.com/nikbrunner/gmark/internal/duplicates"
	"github.com/nikbrunner/gmark/internal/logger"
	"github.com/nikbrunner/gmark/internal/migrate"
	"github.com/nikbrunner/gmark/internal/model"
	"github.com/nikbrunner/gmark/internal/search"
	"github.com/nikbrunner/gmark/internal/storage"
)

// Request is one call into the engine.
type Request struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Response carries either a result or an error message. Existing is set when
// a save collided with a stored bookmark. Progress marks an intermediate frame
// of a streaming request; the final frame never carries it.
type Response struct {
	Result   any               `json:"result,omitempty"`
	Error    string            `json:"error,omitempty"`
	Existing *model.Bookmark   `json:"existing,omitempty"`
	Progress *migrate.Progress `json:"progress,omitempty"`
}

type handler func(ctx context.Context, e *Engine, payload json.RawMessage) (any, error)

// streamHandler may emit intermediate responses before returning. emit is
// never nil.
type streamHandler func(ctx context.Context, e *Engine, payload json.RawMessage, emit func(Response)) (any, error)

var streamHandlers = map[string]streamHandler{
	"runMigration": func(ctx context.Context, e *Engine, _ json.RawMessage, emit func(Response)) (any, error) {
		run, err := e.RunMigration(ctx)
		if err != nil {
			return nil, err
		}
		for p := range run.Progress() {
			emit(Response{Progress: &p})
		}
		return run.Wait(), nil
	},
}

type ok struct {
	OK bool `json:"ok"`
}

var handlers = map[string]handler{
	"classify": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		item, err := decode[model.Item](p)
		if err != nil {
			return nil, err
		}
		return e.Classify(ctx, item), nil
	},
	"findDuplicates": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		item, err := decode[model.Item](p)
		if err != nil {
			return nil, err
		}
		return e.FindDuplicates(ctx, item)
	},
	"migrationStatus": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.MigrationStatus(ctx)
	},
	"resetMigration": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return ok{true}, e.ResetMigration(ctx)
	},
	"cleanupFolders": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.CleanupFolders(ctx)
	},
	"storageStatus": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.StorageStatus(ctx)
	},
	"optimize": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Force bool `json:"force"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.Optimize(ctx, req.Force)
	},
	"statistics": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.Statistics(ctx)
	},
	"export": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.Export(ctx)
	},
	"import": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		doc, err := decode[storage.ExportDocument](p)
		if err != nil {
			return nil, err
		}
		return e.Import(ctx, &doc)
	},
	"getSetting": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Key string `json:"key"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.GetSetting(ctx, req.Key)
	},
	"setSetting": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Key   string          `json:"key"`
			Value json.RawMessage `json:"value"`
		}](p)
		if err != nil {
			return nil, err
		}
		return ok{true}, e.SetSetting(ctx, req.Key, req.Value)
	},
	"getProviderConfig": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[providerRequest](p)
		if err != nil {
			return nil, err
		}
		return e.GetProviderConfig(ctx, req.Provider)
	},
	"setProviderConfig": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[providerRequest](p)
		if err != nil {
			return nil, err
		}
		return ok{true}, e.SetProviderConfig(ctx, req.Provider, req.Config)
	},
	"useProvider": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[providerRequest](p)
		if err != nil {
			return nil, err
		}
		return ok{true}, e.UseProvider(ctx, req.Provider)
	},
	"checkProviderAvailability": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[providerRequest](p)
		if err != nil {
			return nil, err
		}
		return e.CheckProviderAvailability(ctx, req.Provider), nil
	},
	"classifyWithProvider": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[providerRequest](p)
		if err != nil {
			return nil, err
		}
		return e.ClassifyWithProvider(ctx, req.Provider, req.Item), nil
	},
	"tokenUsage": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.TokenUsage(ctx)
	},
	"saveBookmark": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[SaveRequest](p)
		if err != nil {
			return nil, err
		}
		return e.SaveBookmark(ctx, req)
	},
	"deleteBookmark": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[idRequest](p)
		if err != nil {
			return nil, err
		}
		return ok{true}, e.DeleteBookmark(ctx, req.ID)
	},
	"listBookmarks": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Category string `json:"category"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.ListBookmarks(ctx, req.Category)
	},
	"search": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Query    string `json:"query"`
			Category string `json:"category"`
			Tag      string `json:"tag"`
			Limit    int    `json:"limit"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.Search(ctx, req.Query, search.Filter{Category: req.Category, Tag: req.Tag, Limit: req.Limit})
	},
	"pendingDuplicates": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.PendingDuplicates(ctx)
	},
	"findAllDuplicates": func(ctx context.Context, e *Engine, _ json.RawMessage) (any, error) {
		return e.FindAllDuplicates(ctx)
	},
	"mergeDuplicates": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			PrimaryID   string                  `json:"primaryId"`
			DuplicateID string                  `json:"duplicateId"`
			Choices     duplicates.MergeChoices `json:"choices"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.MergeDuplicates(ctx, req.PrimaryID, req.DuplicateID, req.Choices)
	},
	"ignoreDuplicate": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[idRequest](p)
		if err != nil {
			return nil, err
		}
		return ok{true}, e.IgnoreDuplicate(ctx, req.ID)
	},
	"autoMerge": func(ctx context.Context, e *Engine, p json.RawMessage) (any, error) {
		req, err := decode[struct {
			Threshold float64 `json:"threshold"`
		}](p)
		if err != nil {
			return nil, err
		}
		return e.AutoMerge(ctx, req.Threshold)
	},
}

type providerRequest struct {
	Provider string          `json:"provider"`
	Config   json.RawMessage `json:"config,omitempty"`
	Item     model.Item      `json:"item"`
}

type idRequest struct {
	ID string `json:"id"`
}

// RequestTypes lists the request types Dispatch understands.
func RequestTypes() []string {
	types := make([]string, 0, len(handlers)+len(streamHandlers))
	for t := range handlers {
		types = append(types, t)
	}
	for t := range streamHandlers {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

// Dispatch routes a request to its operation. It never panics: unknown types,
// malformed payloads, failures and panics all become error responses.
// Intermediate frames of streaming requests are dropped.
func (e *Engine) Dispatch(ctx context.Context, req Request) Response {
	return e.DispatchStream(ctx, req, nil)
}

// DispatchStream is Dispatch for callers that want the intermediate frames of
// streaming requests such as runMigration. emit is called before the final
// response is returned and may be nil.
func (e *Engine) DispatchStream(ctx context.Context, req Request, emit func(Response)) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			e.log.Error("request panicked", logger.String("type", req.Type), logger.Any("panic", r))
			resp = Response{Error: fmt.Sprintf("internal error: %v", r)}
		}
	}()

	if emit == nil {
		emit = func(Response) {}
	}

	var result any
	var err error
	if sh, found := streamHandlers[req.Type]; found {
		result, err = sh(ctx, e, req.Payload, emit)
	} else if h, found := handlers[req.Type]; found {
		result, err = h(ctx, e, req.Payload)
	} else {
		return Response{Error: fmt.Sprintf("unknown request type %q", req.Type)}
	}

	if err != nil {
		e.log.Debug("request failed", logger.String("type", req.Type), logger.Error(err))
		resp := Response{Error: err.Error()}
		var dup *DuplicateError
		if errors.As(err, &dup) {
			resp.Existing = &dup.Existing
		}
		return resp
	}
	return Response{Result: result}
}

// DispatchJSON decodes a raw request, dispatches it and encodes the response.
func (e *Engine) DispatchJSON(ctx context.Context, raw []byte) []byte {
	return e.DispatchJSONStream(ctx, raw, nil)
}

// DispatchJSONStream is DispatchJSON with encoded intermediate frames passed
// to emit. emit may be nil.
func (e *Engine) DispatchJSONStream(ctx context.Context, raw []byte, emit func([]byte)) []byte {
	var req Request
	if err := json.Unmarshal(raw, &req); err != nil {
		return encodeResponse(Response{Error: fmt.Sprintf("malformed request: %v", err)})
	}

	var frames func(Response)
	if emit != nil {
		frames = func(r Response) { emit(encodeResponse(r)) }
	}
	return encodeResponse(e.DispatchStream(ctx, req, frames))
}

func encodeResponse(resp Response) []byte {
	out, err := json.Marshal(resp)
	if err != nil {
		out, _ = json.Marshal(Response{Error: fmt.Sprintf("encoding response: %v", err)})
	}
	return out
}

// decode unmarshals an optional payload; an empty payload yields the zero T.
func decode[T any](payload json.RawMessage) (T, error) {
	var v T
	if len(payload) == 0 || string(payload) == "null" {
		return v, nil
	}
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, fmt.Errorf("malformed payload: %w", err)
	}
	return v, nil
}
