package web

import (
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/probeflow/probeflow/pkg/models"
	"github.com/probeflow/probeflow/pkg/persistence"
	"github.com/probeflow/probeflow/pkg/services"
)

type APIHandlers struct {
	workflowService    *services.Workflow
	environmentService *services.Environment
	runService         *services.Run
	validator          *validator.Validate
}

func NewAPIHandlers(
	workflowService *services.Workflow,
	environmentService *services.Environment,
	runService *services.Run,
	validator *validator.Validate,
) *APIHandlers {
	return &APIHandlers{
		workflowService:    workflowService,
		environmentService: environmentService,
		runService:         runService,
		validator:          validator,
	}
}

// Register mounts all API routes on the app.
func (h *APIHandlers) Register(app *fiber.App) {
	app.Get("/health", h.HealthCheck)

	app.Get("/workflows", h.GetWorkflows)
	app.Post("/workflows", h.CreateWorkflow)
	app.Get("/workflows/:id", h.GetWorkflow)
	app.Put("/workflows/:id", h.UpdateWorkflow)
	app.Delete("/workflows/:id", h.DeleteWorkflow)
	app.Get("/workflows/:id/runs", h.GetWorkflowRuns)
	app.Post("/workflows/:id/runs", h.CreateRun)

	app.Get("/runs/:id", h.GetRun)

	app.Get("/environments", h.GetEnvironments)
	app.Post("/environments", h.CreateEnvironment)
	app.Get("/environments/:id", h.GetEnvironment)
	app.Put("/environments/:id", h.UpdateEnvironment)
	app.Delete("/environments/:id", h.DeleteEnvironment)
}

func (h *APIHandlers) HealthCheck(c fiber.Ctx) error {
	repositoryCheck, repOk := h.workflowService.HealthCheck(c.Context())

	status := "unhealthy"
	httpStatus := http.StatusInternalServerError

	if repOk {
		status = "healthy"
		httpStatus = http.StatusOK
	}

	return c.Status(httpStatus).JSON(fiber.Map{
		"status": status,
		"checkers": fiber.Map{
			"repository": repositoryCheck,
		},
		"timestamp": time.Now().UTC(),
	})
}

func (h *APIHandlers) GetWorkflows(c fiber.Ctx) error {
	workflows, err := h.workflowService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"workflows": workflows})
}

func (h *APIHandlers) GetWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	workflow, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.JSON(workflow)
}

func (h *APIHandlers) CreateWorkflow(c fiber.Ctx) error {
	var req CreateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	workflow := &models.Workflow{
		Name:      req.Name,
		Nodes:     req.Nodes,
		Edges:     req.Edges,
		Variables: req.Variables,
		Settings:  req.Settings,
	}

	created, err := h.workflowService.Create(c.Context(), workflow)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(created)
}

func (h *APIHandlers) UpdateWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req UpdateWorkflowRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	existing, err := h.workflowService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}

	if req.Nodes != nil {
		existing.Nodes = req.Nodes
	}

	if req.Edges != nil {
		existing.Edges = req.Edges
	}

	if req.Variables != nil {
		existing.Variables = req.Variables
	}

	if req.Settings != nil {
		existing.Settings = *req.Settings
	}

	updated, err := h.workflowService.Update(c.Context(), id, existing)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(updated)
}

func (h *APIHandlers) DeleteWorkflow(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	err := h.workflowService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Workflow not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}

func (h *APIHandlers) GetWorkflowRuns(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	runs, err := h.runService.ListByWorkflow(c.Context(), id)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(fiber.Map{"runs": runs})
}

func (h *APIHandlers) CreateRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Workflow ID is required")
	}

	var req services.CreateRunRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	req.WorkflowID = id

	run, err := h.runService.Create(c.Context(), req)
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(run)
}

func (h *APIHandlers) GetRun(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Run ID is required")
	}

	run, err := h.runService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Run not found")
		}

		return internalError(c, err)
	}

	return c.JSON(run)
}

func (h *APIHandlers) GetEnvironments(c fiber.Ctx) error {
	environments, err := h.environmentService.List(c.Context())
	if err != nil {
		return handleServiceError(c, err)
	}

	responses := make([]EnvironmentResponse, 0, len(environments))
	for _, environment := range environments {
		responses = append(responses, TransformEnvironmentResponse(environment))
	}

	return c.JSON(fiber.Map{"environments": responses})
}

func (h *APIHandlers) GetEnvironment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Environment ID is required")
	}

	environment, err := h.environmentService.FetchByID(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Environment not found")
		}

		return internalError(c, err)
	}

	return c.JSON(TransformEnvironmentResponse(environment))
}

func (h *APIHandlers) CreateEnvironment(c fiber.Ctx) error {
	var req EnvironmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	created, err := h.environmentService.Create(c.Context(), &models.Environment{
		Name:      req.Name,
		Variables: req.Variables,
		Secrets:   req.Secrets,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(TransformEnvironmentResponse(created))
}

func (h *APIHandlers) UpdateEnvironment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Environment ID is required")
	}

	var req EnvironmentRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "Invalid JSON format")
	}

	if err := h.validator.Struct(req); err != nil {
		return badRequest(c, err.Error())
	}

	updated, err := h.environmentService.Update(c.Context(), id, &models.Environment{
		Name:      req.Name,
		Variables: req.Variables,
		Secrets:   req.Secrets,
	})
	if err != nil {
		return handleServiceError(c, err)
	}

	return c.JSON(TransformEnvironmentResponse(updated))
}

func (h *APIHandlers) DeleteEnvironment(c fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return badRequest(c, "Environment ID is required")
	}

	err := h.environmentService.Delete(c.Context(), id)
	if err != nil {
		if persistence.IsNotFound(err) {
			return notFound(c, "Environment not found")
		}

		return internalError(c, err)
	}

	return c.SendStatus(fiber.StatusNoContent)
}
