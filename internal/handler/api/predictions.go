package api

import (
	"errors"
	"net/http"

	"StockCast/internal/domain/models"
	"StockCast/internal/registry"
	"StockCast/internal/usecase"
	xhttp "StockCast/pkg/http"
	xlogger "StockCast/pkg/logger"

	"github.com/labstack/echo/v4"
)

// PredictionsHandler exposes the prediction and retraining HTTP API.
type PredictionsHandler struct {
	logger *xlogger.Logger
	svc    *usecase.PredictionService
	coord  *usecase.RetrainCoordinator
	reg    *registry.Registry
}

func NewPredictionsHandler(
	logger *xlogger.Logger,
	svc *usecase.PredictionService,
	coord *usecase.RetrainCoordinator,
	reg *registry.Registry,
) *PredictionsHandler {
	return &PredictionsHandler{logger: logger, svc: svc, coord: coord, reg: reg}
}

func (h *PredictionsHandler) RegisterRoutes(e *echo.Echo) {
	e.GET("/health", h.Health)
	e.GET("/prediction/:instrument", h.Prediction)
	e.GET("/history/:instrument", h.History)
	e.GET("/models/:instrument", h.Models)
	e.POST("/retrain", h.RetrainAll)
	e.POST("/retrain/:instrument", h.Retrain)
}

func (h *PredictionsHandler) Health(c echo.Context) error {
	return xhttp.SuccessResponse(c, map[string]string{"status": "ok"})
}

// Prediction predicts the next close for one instrument. The optional
// "version" query parameter pins a specific model version; the default is
// the newest ready one.
func (h *PredictionsHandler) Prediction(c echo.Context) error {
	instrument := c.Param("instrument")
	selector := c.QueryParam("version")

	res, err := h.svc.PredictLatest(c.Request().Context(), instrument, selector)
	if err != nil {
		h.logger.Error("prediction failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// HistoryRequest carries the query parameters of GET /history/:instrument.
type HistoryRequest struct {
	Version string `query:"version"`
	Days    int    `query:"days" default:"7" validate:"gte=1,lte=365"`
}

// History replays the model over the last N trading days, pairing each
// prediction with that day's actual close.
func (h *PredictionsHandler) History(c echo.Context) error {
	instrument := c.Param("instrument")

	req := &HistoryRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	res, err := h.svc.PredictHistory(c.Request().Context(), instrument, req.Version, req.Days)
	if err != nil {
		h.logger.Error("history failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	return xhttp.SuccessResponse(c, res)
}

// Models lists every known model version for an instrument.
func (h *PredictionsHandler) Models(c echo.Context) error {
	instrument := c.Param("instrument")

	versions := h.reg.Versions(instrument)
	if len(versions) == 0 {
		return xhttp.AppErrorResponse(c, xhttp.NotFoundErrorf("no model versions for %s", instrument))
	}
	return xhttp.ListResponse(c, versions, int64(len(versions)))
}

// RetrainRequest carries the optional hyperparameter overrides of the
// retrain endpoints. Zero values keep the configured defaults.
type RetrainRequest struct {
	Epochs int `query:"epochs" validate:"gte=0,lte=1000"`
	Batch  int `query:"batch" validate:"gte=0,lte=4096"`
}

// Retrain queues a retrain for one instrument.
func (h *PredictionsHandler) Retrain(c echo.Context) error {
	instrument := c.Param("instrument")

	req := &RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	params := models.TrainParams{Epochs: req.Epochs, BatchSize: req.Batch}
	receipt, err := h.coord.Trigger(c.Request().Context(), instrument, params)
	if err != nil {
		h.logger.Error("retrain trigger failed",
			xlogger.String("instrument", instrument),
			xlogger.Error(err))
		return xhttp.AppErrorResponse(c, mapDomainError(err))
	}
	if !receipt.Accepted {
		return xhttp.DataResponse(c, http.StatusConflict, receipt)
	}
	return xhttp.CreatedResponse(c, receipt)
}

// RetrainAll queues a retrain for every configured instrument.
func (h *PredictionsHandler) RetrainAll(c echo.Context) error {
	req := &RetrainRequest{}
	if verr := xhttp.ReadAndValidateRequest(c, req); verr != nil {
		return xhttp.BadRequestResponse(c, verr)
	}

	params := models.TrainParams{Epochs: req.Epochs, BatchSize: req.Batch}
	receipts := h.coord.TriggerAll(c.Request().Context(), params)
	return xhttp.CreatedResponse(c, receipts)
}

// mapDomainError translates domain sentinels into HTTP errors: unknown
// instruments and versions are 404, everything else in the serving path
// is a 500.
func mapDomainError(err error) error {
	switch {
	case errors.Is(err, models.ErrInstrumentUnsupported):
		return xhttp.NotFoundError("instrument not supported").WithError(err)
	case errors.Is(err, models.ErrVersionNotFound):
		return xhttp.NotFoundError("model version not found").WithError(err)
	case errors.Is(err, models.ErrNoReadyVersion):
		return xhttp.NotFoundError("no trained model available").WithError(err)
	case errors.Is(err, models.ErrInsufficientHistory):
		return xhttp.InternalError("not enough price history to predict").WithError(err)
	case errors.Is(err, models.ErrSourceUnavailable),
		errors.Is(err, models.ErrRateLimited),
		errors.Is(err, models.ErrEmptyResult):
		return xhttp.InternalError("upstream data source unavailable").WithError(err)
	default:
		return err
	}
}
