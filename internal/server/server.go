package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	humachi "github.com/danielgtaylor/huma/v2/adapters/humachi"
	"github.com/go-chi/chi/v5"

	"freshledger/internal/domain"
	"freshledger/internal/driver"
	"freshledger/internal/engine"
	"freshledger/internal/ledger"
	"freshledger/internal/scenario"
)

// Config for the HTTP API handler.
type Config struct {
	Engine   engine.Engine
	BasePath string
	Auth     AuthConfig
}

type apiErrorBody struct {
	Code    string         `json:"code" example:"invalid_event"`
	Message string         `json:"message" example:"invalid event 1002: details.condition is required"`
	Details map[string]any `json:"details,omitempty" jsonschema:"type=object,additionalProperties=true"`
}

// apiError models the error envelope.
type apiError struct {
	status int
	Body   apiErrorBody `json:"error"`
}

func (e *apiError) GetStatus() int { return e.status }
func (e *apiError) Error() string  { return e.Body.Message }

// New returns an HTTP handler exposing the freshledger API.
func New(cfg Config) (http.Handler, error) {
	basePath := cfg.BasePath
	if basePath == "" {
		basePath = "/v0"
	}
	if !strings.HasPrefix(basePath, "/") {
		basePath = "/" + basePath
	}
	huma.DefaultArrayNullable = false
	// Override Huma errors to use the envelope.
	huma.NewError = func(status int, msg string, errs ...error) huma.StatusError {
		return newAPIError(status, "", msg, nil)
	}
	huma.NewErrorWithContext = func(_ huma.Context, status int, msg string, errs ...error) huma.StatusError {
		if status == http.StatusUnprocessableEntity && strings.Contains(strings.ToLower(msg), "validation") {
			// Schema/request validation errors should be 400 bad_request
			status = http.StatusBadRequest
		}
		var details map[string]any
		if len(errs) > 0 {
			details = map[string]any{"errors": errs}
		}
		return newAPIError(status, "", msg, details)
	}

	router := chi.NewRouter()
	router.Use(newAuthMiddleware(basePath, cfg.Auth))
	hcfg := huma.DefaultConfig("Freshledger API", "0.1.0")
	hcfg.OpenAPIPath = "/openapi"
	hcfg.DocsPath = "" // custom Swagger UI below
	api := humachi.New(router, hcfg)
	group := huma.NewGroup(api, basePath)

	registerDocs(router, basePath)
	registerHealth(group)
	registerEvents(group, cfg.Engine)
	registerEvaluations(group, cfg.Engine)
	registerViolations(group, cfg.Engine)
	registerScenario(group, cfg.Engine)
	registerOpenAPI(router, api, basePath)

	return router, nil
}

func newAPIError(status int, code, message string, details map[string]any) huma.StatusError {
	if code == "" {
		code = defaultCodeForStatus(status)
	}
	return &apiError{
		status: status,
		Body: apiErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

func handleError(err error) huma.StatusError {
	if err == nil {
		return nil
	}
	var ie engine.InvalidEventError
	if errors.As(err, &ie) {
		return newAPIError(http.StatusBadRequest, "invalid_event", err.Error(), map[string]any{"field": ie.Field})
	}
	if errors.Is(err, ledger.ErrNotFound) {
		return newAPIError(http.StatusNotFound, "not_found", err.Error(), nil)
	}
	msg := err.Error()
	lowered := strings.ToLower(msg)
	switch {
	case strings.Contains(lowered, "already evaluated"):
		return newAPIError(http.StatusConflict, "already_evaluated", msg, nil)
	case strings.Contains(lowered, "invalid") || strings.Contains(lowered, "missing") || strings.Contains(lowered, "required") || strings.Contains(lowered, "unknown"):
		return newAPIError(http.StatusBadRequest, "bad_request", msg, nil)
	default:
		return newAPIError(http.StatusInternalServerError, "internal_error", "internal error", map[string]any{"error": msg})
	}
}

func defaultCodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "bad_request"
	case http.StatusNotFound:
		return "not_found"
	case http.StatusConflict:
		return "conflict"
	case http.StatusUnprocessableEntity:
		return "validation_failed"
	case http.StatusInternalServerError:
		return "internal_error"
	default:
		return strings.ToLower(strings.ReplaceAll(http.StatusText(status), " ", "_"))
	}
}

func registerDocs(r chi.Router, basePath string) {
	r.Get("/docs", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html")
		io.WriteString(w, swaggerHTML(basePath))
	})
}

func registerOpenAPI(r chi.Router, api huma.API, basePath string) {
	var spec []byte
	specPath := path.Join(basePath, "openapi.json")
	r.Get(specPath, func(w http.ResponseWriter, r *http.Request) {
		if spec == nil {
			oas := api.OpenAPI()
			applyAuthSecurity(oas, basePath)
			spec, _ = json.Marshal(oas)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write(spec)
	})
}

func applyAuthSecurity(oas *huma.OpenAPI, basePath string) {
	if oas == nil {
		return
	}
	if oas.Components == nil {
		oas.Components = &huma.Components{}
	}
	if oas.Components.SecuritySchemes == nil {
		oas.Components.SecuritySchemes = map[string]*huma.SecurityScheme{}
	}
	oas.Components.SecuritySchemes["bearerAuth"] = &huma.SecurityScheme{
		Type:         "http",
		Scheme:       "bearer",
		BearerFormat: "JWT",
	}
	security := []map[string][]string{
		{"bearerAuth": {}},
	}
	oas.Security = security
	healthPath := path.Join(basePath, "health")
	if !strings.HasPrefix(healthPath, "/") {
		healthPath = "/" + healthPath
	}
	for route, item := range oas.Paths {
		for _, op := range []*huma.Operation{
			item.Get, item.Put, item.Post, item.Delete, item.Options, item.Head, item.Patch, item.Trace,
		} {
			if op == nil {
				continue
			}
			if route == healthPath {
				op.Security = []map[string][]string{}
				continue
			}
			op.Security = security
		}
	}
}

func swaggerHTML(basePath string) string {
	specURL := path.Join("/", path.Join(basePath, "openapi.json"))
	return fmt.Sprintf(`<!doctype html>
<html lang="en">
  <head>
    <meta charset="utf-8"/>
    <meta name="viewport" content="width=device-width, initial-scale=1"/>
    <title>Freshledger API Docs</title>
    <link rel="stylesheet" href="https://unpkg.com/swagger-ui-dist@5/swagger-ui.css" />
  </head>
  <body>
    <div id="swagger-ui"></div>
    <script src="https://unpkg.com/swagger-ui-dist@5/swagger-ui-bundle.js" crossorigin></script>
    <script>
      window.onload = () => {
        SwaggerUIBundle({
          url: '%s',
          dom_id: '#swagger-ui'
        });
      };
    </script>
    <p style="padding: 1rem; font-family: sans-serif; color: #444;">
      Authenticate with Authorization: Bearer &lt;token&gt;.
    </p>
  </body>
</html>`, specURL)
}

func registerHealth(api huma.API) {
	huma.Register(api, huma.Operation{
		OperationID: "health",
		Method:      http.MethodGet,
		Path:        "/health",
		Summary:     "Health check",
	}, func(ctx context.Context, _ *struct{}) (*struct {
		Body map[string]string `json:"body"`
	}, error) {
		return &struct {
			Body map[string]string `json:"body"`
		}{Body: map[string]string{"status": "ok"}}, nil
	})
}

func registerEvents(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "append-event",
		Method:      http.MethodPost,
		Path:        "/events",
		Summary:     "Append an event to the ledger",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body AppendEventRequest
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		actorID, authErr := actorIDFromContext(ctx)
		if authErr != nil {
			return nil, authErr
		}
		in, err := input.Body.toInput(actorID)
		if err != nil {
			return nil, handleError(err)
		}
		evt := e.Ledger.Append(ctx, in)
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: evt}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "list-events",
		Method:      http.MethodGet,
		Path:        "/events",
		Summary:     "List ledger events in append order",
	}, func(ctx context.Context, input *struct {
		ProductID string `query:"product_id"`
		Type      string `query:"event_type" enum:"HARVEST,PROCESS,TRANSPORT,WAREHOUSE_RECEIPT,RETAIL_RECEIPT,PAYMENT_REQUEST"`
		Limit     int    `query:"limit" default:"50"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		events := e.Ledger.List(ctx, ledger.Filters{
			ProductID: input.ProductID,
			Type:      domain.EventType(input.Type),
			Limit:     input.Limit,
		})
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: events, Total: e.Ledger.Len()}}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-event",
		Method:      http.MethodGet,
		Path:        "/events/{event_id}",
		Summary:     "Fetch one ledger event",
		Errors:      []int{http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID int64 `path:"event_id"`
	}) (*struct {
		Body domain.Event `json:"body"`
	}, error) {
		evt, err := e.Ledger.Get(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.Event `json:"body"`
		}{Body: evt}, nil
	})
}

func registerEvaluations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "evaluate-conditions",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/conditions",
		Summary:     "Evaluate environmental conditions for an event",
		Description: "Runs the temperature and humidity range checks and commits the violation flag to the ledger.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound, http.StatusConflict},
	}, func(ctx context.Context, input *struct {
		EventID int64 `path:"event_id"`
	}) (*struct {
		Body domain.ConditionResult `json:"body"`
	}, error) {
		evt, err := e.Ledger.Get(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		res, err := e.EvaluateConditions(ctx, evt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.ConditionResult `json:"body"`
		}{Body: res}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "evaluate-payment",
		Method:      http.MethodPost,
		Path:        "/events/{event_id}/payment",
		Summary:     "Evaluate payment release for a payment request",
		Description: "Consults the ledger for prior violations of the same product and computes spoilage and payable amount.",
		Errors:      []int{http.StatusBadRequest, http.StatusNotFound},
	}, func(ctx context.Context, input *struct {
		EventID int64 `path:"event_id"`
	}) (*struct {
		Body domain.PaymentDecision `json:"body"`
	}, error) {
		evt, err := e.Ledger.Get(ctx, input.EventID)
		if err != nil {
			return nil, handleError(err)
		}
		dec, err := e.EvaluatePricing(ctx, evt)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body domain.PaymentDecision `json:"body"`
		}{Body: dec}, nil
	})
}

func registerViolations(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "list-product-violations",
		Method:      http.MethodGet,
		Path:        "/products/{product_id}/violations",
		Summary:     "List events flagged with violations for a product",
	}, func(ctx context.Context, input *struct {
		ProductID string `path:"product_id"`
	}) (*struct {
		Body EventListResponse `json:"body"`
	}, error) {
		events := e.Ledger.FindByProductWithViolation(ctx, input.ProductID)
		return &struct {
			Body EventListResponse `json:"body"`
		}{Body: EventListResponse{Events: events, Total: len(events)}}, nil
	})
}

func registerScenario(api huma.API, e engine.Engine) {
	huma.Register(api, huma.Operation{
		OperationID: "run-scenario",
		Method:      http.MethodPost,
		Path:        "/scenario/run",
		Summary:     "Run an event scenario through the evaluators",
		Description: "Appends each event in order and dispatches it by type, exactly like the CLI driver.",
		Errors:      []int{http.StatusBadRequest},
	}, func(ctx context.Context, input *struct {
		Body RunScenarioRequest
	}) (*struct {
		Body driver.Report `json:"body"`
	}, error) {
		s := input.Body.toScenario()
		if len(s.Events) == 0 {
			s = scenario.Sample()
		}
		report, err := driver.Run(ctx, e, s)
		if err != nil {
			return nil, handleError(err)
		}
		return &struct {
			Body driver.Report `json:"body"`
		}{Body: report}, nil
	})
}
