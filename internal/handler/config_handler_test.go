package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/kursadbilgin/notification-hub/internal/domain"
	"github.com/kursadbilgin/notification-hub/internal/transport"
	"go.uber.org/zap"
)

type stubConfigService struct {
	createFn     func(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error)
	updateFn     func(ctx context.Context, cfg *domain.ProviderConfig) error
	deactivateFn func(ctx context.Context, id string) error
	getFn        func(ctx context.Context, id string) (*domain.ProviderConfig, error)
}

func (s *stubConfigService) Create(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
	return s.createFn(ctx, cfg)
}

func (s *stubConfigService) Update(ctx context.Context, cfg *domain.ProviderConfig) error {
	return s.updateFn(ctx, cfg)
}

func (s *stubConfigService) Deactivate(ctx context.Context, id string) error {
	return s.deactivateFn(ctx, id)
}

func (s *stubConfigService) Get(ctx context.Context, id string) (*domain.ProviderConfig, error) {
	return s.getFn(ctx, id)
}

type stubTemplateStore struct {
	createFn func(ctx context.Context, tpl *domain.Template) error
	getFn    func(ctx context.Context, id string) (*domain.Template, error)
	deleteFn func(ctx context.Context, id string) error
}

func (s *stubTemplateStore) Create(ctx context.Context, tpl *domain.Template) error {
	return s.createFn(ctx, tpl)
}

func (s *stubTemplateStore) GetByID(ctx context.Context, id string) (*domain.Template, error) {
	return s.getFn(ctx, id)
}

func (s *stubTemplateStore) Delete(ctx context.Context, id string) error {
	return s.deleteFn(ctx, id)
}

func newConfigTestApp(t *testing.T, configs ConfigService, templates TemplateStore) *fiber.App {
	t.Helper()

	app := fiber.New(fiber.Config{
		ErrorHandler: transport.ErrorHandler(zap.NewNop()),
	})

	if err := RegisterConfigRoutes(app, configs, templates); err != nil {
		t.Fatalf("RegisterConfigRoutes() error = %v", err)
	}

	return app
}

func noopTemplateStore() *stubTemplateStore {
	return &stubTemplateStore{
		createFn: func(context.Context, *domain.Template) error { return nil },
		getFn: func(context.Context, string) (*domain.Template, error) {
			return &domain.Template{}, nil
		},
		deleteFn: func(context.Context, string) error { return nil },
	}
}

func TestConfigIntegration_CreateConfig(t *testing.T) {
	t.Parallel()

	configs := &stubConfigService{
		createFn: func(ctx context.Context, cfg *domain.ProviderConfig) (*domain.ProviderConfig, error) {
			if cfg.Channel != domain.ChannelSMS {
				t.Fatalf("channel = %s, want SMS", cfg.Channel)
			}
			if !cfg.Active {
				t.Fatal("created config should be active")
			}
			created := *cfg
			created.ID = "cfg-1"
			return &created, nil
		},
	}

	app := newConfigTestApp(t, configs, noopTemplateStore())

	body := `{"clientName":"acme","channel":"sms","provider":"twilio","config":{"accountSid":"AC1"}}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/configs", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}

	var created map[string]any
	if err := json.Unmarshal(respBody, &created); err != nil {
		t.Fatalf("json unmarshal error = %v", err)
	}
	if created["id"] != "cfg-1" {
		t.Fatalf("id = %v, want cfg-1", created["id"])
	}

	missingProviderBody := `{"clientName":"acme","channel":"sms","config":{}}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/configs", missingProviderBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for missing provider", resp.StatusCode)
	}
}

func TestConfigIntegration_GetConfigNotFound(t *testing.T) {
	t.Parallel()

	configs := &stubConfigService{
		getFn: func(ctx context.Context, id string) (*domain.ProviderConfig, error) {
			return nil, fmt.Errorf("%w: %s", domain.ErrConfigNotFound, id)
		},
	}

	app := newConfigTestApp(t, configs, noopTemplateStore())

	resp, _ := performRequest(t, app, http.MethodGet, "/v1/configs/missing", "")
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("status = %d, want 404", resp.StatusCode)
	}
}

func TestConfigIntegration_DeactivateConfig(t *testing.T) {
	t.Parallel()

	deactivated := ""
	configs := &stubConfigService{
		deactivateFn: func(ctx context.Context, id string) error {
			deactivated = id
			return nil
		},
	}

	app := newConfigTestApp(t, configs, noopTemplateStore())

	resp, body := performRequest(t, app, http.MethodPost, "/v1/configs/cfg-7/deactivate", "")
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("status = %d, want 200, body=%s", resp.StatusCode, string(body))
	}
	if deactivated != "cfg-7" {
		t.Fatalf("deactivated id = %s, want cfg-7", deactivated)
	}
}

func TestConfigIntegration_CreateTemplate(t *testing.T) {
	t.Parallel()

	templates := noopTemplateStore()
	var storedName string
	templates.createFn = func(ctx context.Context, tpl *domain.Template) error {
		storedName = tpl.Name
		if tpl.ID == "" {
			t.Fatal("template id should be assigned before storing")
		}
		return nil
	}

	configs := &stubConfigService{}
	app := newConfigTestApp(t, configs, templates)

	body := `{"templateName":"welcome","emailSubject":"Hi","content":"<p>Hello {{name}}</p>"}`
	resp, respBody := performRequest(t, app, http.MethodPost, "/v1/templates", body)
	if resp.StatusCode != fiber.StatusCreated {
		t.Fatalf("status = %d, want 201, body=%s", resp.StatusCode, string(respBody))
	}
	if storedName != "welcome" {
		t.Fatalf("stored name = %s, want welcome", storedName)
	}

	emptyBody := `{"templateName":"empty"}`
	resp, _ = performRequest(t, app, http.MethodPost, "/v1/templates", emptyBody)
	if resp.StatusCode != fiber.StatusBadRequest {
		t.Fatalf("status = %d, want 400 for template without content", resp.StatusCode)
	}
}
