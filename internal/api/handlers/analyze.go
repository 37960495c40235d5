package handlers

import (
	"context"
	"errors"
	"io"
	"mime"
	"mime/multipart"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/hotspot-detector/geodetect/internal/analysis"
	"github.com/hotspot-detector/geodetect/internal/asset"
	"github.com/hotspot-detector/geodetect/internal/logger"
)

// UploadField is the multipart field carrying the raster.
const UploadField = "file"

// AnalyzeResponse is the success body of POST /analyze_geotiff.
type AnalyzeResponse struct {
	Success bool `json:"success"`
	*analysis.Result
}

// AnalyzeGeoTIFF stores the uploaded raster, analyses it and releases it.
//
// The model state is checked before the body is read so a degraded service
// never writes uploads to disk.
func (h *Handlers) AnalyzeGeoTIFF(c echo.Context) error {
	if !h.model.Ready() {
		return modelNotLoaded(nil)
	}

	part, filename, apiErr := h.uploadPart(c)
	if apiErr != nil {
		return apiErr
	}
	defer part.Close()

	handle, err := h.assets.Acquire(c.Request().Context(), filename, part)
	if err != nil {
		return h.uploadError(err)
	}
	defer func() {
		// failures are logged by the asset manager
		_ = handle.Release()
	}()

	// the asset is released by the defer above whether or not the client waits
	ctx := context.WithoutCancel(c.Request().Context())
	result, err := h.analyzer.Analyze(ctx, handle.Path(), handle.Name())
	if err != nil {
		return analysisError(err)
	}

	return c.JSON(http.StatusOK, AnalyzeResponse{Success: true, Result: result})
}

// uploadPart advances the multipart stream to the file field. Parts before
// it are skipped without buffering.
func (h *Handlers) uploadPart(c echo.Context) (*multipart.Part, string, *APIError) {
	mr, err := c.Request().MultipartReader()
	if err != nil {
		if errors.Is(err, http.ErrNotMultipart) {
			return nil, "", noFile()
		}
		return nil, "", newAPIError(http.StatusBadRequest, CodeInvalidUpload, "Requisição multipart inválida.", err)
	}

	for {
		part, err := mr.NextPart()
		if errors.Is(err, io.EOF) {
			return nil, "", noFile()
		}
		if err != nil {
			return nil, "", h.uploadError(err)
		}

		if part.FormName() != UploadField {
			part.Close()
			continue
		}

		filename, isFile := uploadFilename(part)
		if !isFile {
			// a plain form value named "file" is not an upload
			part.Close()
			continue
		}
		if filename == "" {
			part.Close()
			return nil, "", newAPIError(http.StatusBadRequest, CodeEmptyFilename, "Nenhum arquivo selecionado.", nil)
		}
		return part, filename, nil
	}
}

// uploadFilename returns the raw filename parameter and whether the part
// carried one at all.
func uploadFilename(part *multipart.Part) (string, bool) {
	_, params, err := mime.ParseMediaType(part.Header.Get("Content-Disposition"))
	if err != nil {
		return "", false
	}
	name, ok := params["filename"]
	return name, ok
}

func noFile() *APIError {
	return newAPIError(http.StatusBadRequest, CodeNoFile, "Nenhum arquivo enviado.", nil)
}

func modelNotLoaded(err error) *APIError {
	return newAPIError(http.StatusServiceUnavailable, CodeModelNotLoaded, "Modelo não carregado.", err)
}

// uploadError maps failures while reading or storing the upload.
func (h *Handlers) uploadError(err error) *APIError {
	var httpErr *echo.HTTPError
	switch {
	case errors.Is(err, asset.ErrAssetTooLarge):
		return h.tooLarge(err)
	case errors.As(err, &httpErr) && httpErr.Code == http.StatusRequestEntityTooLarge:
		return h.tooLarge(err)
	case errors.Is(err, asset.ErrAssetPersist):
		h.log.Error("Upload could not be stored", logger.Error(err))
		apiErr := newAPIError(http.StatusInternalServerError, CodeProcessingError, "Erro ao processar o arquivo de imagem.", err)
		apiErr.Details = "Falha ao armazenar o arquivo temporário."
		return apiErr
	default:
		return newAPIError(http.StatusBadRequest, CodeInvalidUpload, "Falha ao receber o arquivo enviado.", err)
	}
}

// analysisError maps pipeline failures. Details are a summary; the cause is logged.
func analysisError(err error) *APIError {
	var details string
	switch analysis.KindOf(err) {
	case analysis.KindModelUnavailable:
		return modelNotLoaded(err)
	case analysis.KindUnreadableRaster:
		details = "O arquivo não é um raster georreferenciado válido."
	case analysis.KindInference:
		details = "Falha na inferência do modelo."
	default:
		details = "Erro inesperado durante a análise."
	}
	apiErr := newAPIError(http.StatusInternalServerError, CodeProcessingError, "Erro ao processar o arquivo de imagem.", err)
	apiErr.Details = details
	return apiErr
}
