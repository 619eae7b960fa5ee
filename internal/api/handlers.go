package api

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/gin-gonic/gin"

	"github.com/piwi3910/CrateFit/internal/export"
	"github.com/piwi3910/CrateFit/internal/model"
	"github.com/piwi3910/CrateFit/internal/task"
)

func errorBody(message string) gin.H {
	return gin.H{"status": "error", "message": message}
}

func (s *Server) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok", "message": "Service is running"})
}

func (s *Server) handleDocs(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"name":        "3D Bin Packing API",
		"description": "API for optimizing 3D bin packing problems",
		"endpoints": []gin.H{
			{
				"path":        "/api/optimize",
				"method":      "POST",
				"description": "Start a new optimization task",
				"request_example": gin.H{
					"container": gin.H{"width": 25, "height": 25, "depth": 25},
					"items": []gin.H{
						{"id": 1, "name": "Laptop", "dimensions": gin.H{"width": 33, "height": 22, "depth": 2}},
						{"id": 2, "name": "Box", "quantity": 2, "dimensions": gin.H{"width": 10, "height": 10, "depth": 10}},
					},
					"config": gin.H{"population_size": 30, "generations": 50, "algorithm": "genetic"},
				},
			},
			{"path": "/api/containers", "method": "GET", "description": "List container presets usable as container_preset"},
			{"path": "/api/tasks/{task_id}", "method": "GET", "description": "Get status of an optimization task"},
			{"path": "/api/tasks/{task_id}/cancel", "method": "POST", "description": "Cancel a running optimization task"},
			{"path": "/api/tasks/{task_id}/export/{format}", "method": "GET", "description": "Download a completed result as pdf, labels, dxf or xlsx"},
			{"path": "/api/tasks", "method": "GET", "description": "List all optimization tasks"},
			{"path": "/metrics", "method": "GET", "description": "Prometheus metrics"},
		},
	})
}

func (s *Server) handleOptimize(c *gin.Context) {
	logger := loggerFrom(c, s.logger)

	var req optimizeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		msg := "Invalid request body"
		if errors.Is(err, io.EOF) {
			msg = "No data provided"
		}
		c.JSON(http.StatusBadRequest, errorBody(msg))
		return
	}
	if err := validate.Struct(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorBody(validationMessage(err)))
		return
	}

	container, err := s.resolveContainer(&req)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}
	items, err := model.ExpandItems(req.itemSpecs())
	if err != nil {
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	}

	id, err := s.tasks.Submit(task.Request{
		Container: container,
		Items:     items,
		Settings:  req.settings(s.defaults),
	})
	switch {
	case errors.Is(err, task.ErrInvalidRequest):
		c.JSON(http.StatusBadRequest, errorBody(err.Error()))
		return
	case errors.Is(err, task.ErrClosed):
		c.JSON(http.StatusServiceUnavailable, errorBody("Service is shutting down"))
		return
	case err != nil:
		logger.Error("submit task", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"status":  "accepted",
		"task_id": id,
		"message": "Optimization started",
	})
}

// resolveContainer uses the explicit container when given, otherwise the
// named preset.
func (s *Server) resolveContainer(req *optimizeRequest) (model.Dimensions, error) {
	if req.Container != nil {
		return req.Container.containerDimensions()
	}
	preset := s.presets.Lookup(req.ContainerPreset)
	if preset == nil {
		return model.Dimensions{}, fmt.Errorf("unknown container preset %q", req.ContainerPreset)
	}
	if err := preset.Size.ValidateGrid(); err != nil {
		return model.Dimensions{}, fmt.Errorf("container preset %q: %w", preset.Name, err)
	}
	return preset.Size, nil
}

func (s *Server) handleListContainers(c *gin.Context) {
	containers := s.presets.Containers
	if containers == nil {
		containers = []model.ContainerPreset{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "containers": containers})
}

func (s *Server) handleTaskStatus(c *gin.Context) {
	snap, ok := s.lookup(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (s *Server) handleCancelTask(c *gin.Context) {
	id := c.Param("id")
	err := s.tasks.Cancel(c.Request.Context(), id)
	switch {
	case err == nil:
		c.JSON(http.StatusOK, gin.H{"status": "success", "message": "Task cancellation requested"})
	case errors.Is(err, task.ErrNotFound):
		c.JSON(http.StatusNotFound, errorBody("Task not found"))
	case errors.Is(err, task.ErrTerminal):
		status := "finished"
		if snap, serr := s.tasks.Status(c.Request.Context(), id); serr == nil {
			status = string(snap.Status)
		}
		c.JSON(http.StatusBadRequest, errorBody(fmt.Sprintf("Task is %s, cannot cancel", status)))
	default:
		loggerFrom(c, s.logger).Error("cancel task", "task_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
	}
}

func (s *Server) handleListTasks(c *gin.Context) {
	tasks, err := s.tasks.List(c.Request.Context())
	if err != nil {
		loggerFrom(c, s.logger).Error("list tasks", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	if tasks == nil {
		tasks = []task.Summary{}
	}
	c.JSON(http.StatusOK, gin.H{"status": "success", "tasks": tasks})
}

// exporter writes a result to a file.
type exporter struct {
	ext   string
	write func(path string, result model.PackResult) error
}

var exporters = map[string]exporter{
	"pdf":    {ext: ".pdf", write: export.ExportPDF},
	"labels": {ext: "-labels.pdf", write: export.ExportLabels},
	"dxf":    {ext: ".dxf", write: export.ExportDXF},
	"xlsx":   {ext: ".xlsx", write: export.ExportXLSX},
}

func (s *Server) handleExport(c *gin.Context) {
	format := c.Param("format")
	exp, known := exporters[format]
	if !known {
		c.JSON(http.StatusBadRequest, errorBody(fmt.Sprintf("Unknown export format %q (use pdf, labels, dxf or xlsx)", format)))
		return
	}

	snap, ok := s.lookup(c)
	if !ok {
		return
	}
	if snap.Status != task.StatusCompleted || snap.Result == nil {
		c.JSON(http.StatusConflict, errorBody(fmt.Sprintf("Task is %s, only completed tasks can be exported", snap.Status)))
		return
	}

	logger := loggerFrom(c, s.logger)
	f, err := os.CreateTemp(s.exportDir, "cratefit-*"+exp.ext)
	if err != nil {
		logger.Error("create export file", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody("Cannot create export file"))
		return
	}
	path := f.Name()
	f.Close()
	defer os.Remove(path)

	if err := exp.write(path, *snap.Result); err != nil {
		logger.Error("export task", "task_id", snap.ID, "format", format, "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return
	}
	c.FileAttachment(path, snap.ID+exp.ext)
}

// lookup loads the task named by the :id parameter, writing a 404 when it
// does not exist.
func (s *Server) lookup(c *gin.Context) (task.Snapshot, bool) {
	snap, err := s.tasks.Status(c.Request.Context(), c.Param("id"))
	if errors.Is(err, task.ErrNotFound) {
		c.JSON(http.StatusNotFound, errorBody("Task not found"))
		return task.Snapshot{}, false
	}
	if err != nil {
		loggerFrom(c, s.logger).Error("load task", "error", err)
		c.JSON(http.StatusInternalServerError, errorBody(err.Error()))
		return task.Snapshot{}, false
	}
	return snap, true
}
