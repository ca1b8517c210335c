package pantry

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/zombor/chopify/internal/inventory"
	"github.com/zombor/chopify/internal/scanning"
)

// maxUploadSize caps receipt uploads; high-resolution phone photos run large
const maxUploadSize = int64(50 << 20)

// corsError writes an error response with CORS headers set
func corsError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	http.Error(w, message, code)
}

// jsonError writes a {"error": message} body
func jsonError(w http.ResponseWriter, message string, code int) {
	setCORSHeaders(w)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(map[string]string{
		"error": message,
	})
}

// writeJSON encodes v as the response body
func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Error encoding response", "error", err)
	}
}

// setCORSHeaders sets CORS headers on a response
func setCORSHeaders(w http.ResponseWriter) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	w.Header().Set("Access-Control-Max-Age", "3600")
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.Write([]byte("ok"))
}

// handleScanReceipt scans an uploaded receipt and returns the items found.
// The items are not saved.
func (s *Server) handleScanReceipt(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxUploadSize)
	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		slog.Error("Error parsing multipart form", "error", err)
		errorMsg := "Error parsing form"
		var maxBytesErr *http.MaxBytesError
		if errors.As(err, &maxBytesErr) {
			errorMsg = "File is too large. Maximum size is 50MB. Please compress or resize your image."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}

	f, header, err := r.FormFile("file")
	if err != nil {
		slog.Error("Error getting file from form", "error", err)
		errorMsg := "No file provided"
		if errors.Is(err, http.ErrMissingFile) {
			errorMsg = "No file was selected. Please choose a file to upload."
		}
		jsonError(w, errorMsg, http.StatusBadRequest)
		return
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		slog.Error("Error reading file data", "error", err, "filename", header.Filename)
		jsonError(w, "Error reading file. Please try again.", http.StatusInternalServerError)
		return
	}

	contentType := uploadContentType(header.Header.Get("Content-Type"), header.Filename)

	items, err := s.service.ScanReceipt(r.Context(), header.Filename, data, contentType)
	if err != nil {
		jsonError(w, err.Error(), scanErrorStatus(err))
		return
	}

	writeJSON(w, http.StatusOK, items)
}

// uploadContentType falls back to the file extension when the form part has no type
func uploadContentType(contentType, filename string) string {
	contentType = strings.ToLower(strings.TrimSpace(contentType))
	if contentType != "" && contentType != "application/octet-stream" {
		return contentType
	}

	switch strings.ToLower(filepath.Ext(filename)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".png":
		return "image/png"
	case ".pdf":
		return "application/pdf"
	case ".heic":
		return "image/heic"
	case ".heif":
		return "image/heif"
	}
	return "application/octet-stream"
}

// scanErrorStatus maps a scan failure to an HTTP status. An unreadable upload
// is the client's fault. A readable image whose text is blank can't be
// processed. Everything upstream is a bad gateway.
func scanErrorStatus(err error) int {
	var encodingErr *scanning.EncodingError
	if errors.As(err, &encodingErr) {
		return http.StatusBadRequest
	}
	if errors.Is(err, scanning.ErrEmptyInput) {
		return http.StatusUnprocessableEntity
	}
	return http.StatusBadGateway
}

// handleListItems returns the whole inventory
func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListItems()
	if err != nil {
		slog.Error("Error listing items", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateItems saves one item or an array of reviewed scan items
func (s *Server) handleCreateItems(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	var items []inventory.Item
	single := !bytes.HasPrefix(bytes.TrimSpace(body), []byte("["))
	if single {
		var item inventory.Item
		err = json.Unmarshal(body, &item)
		items = []inventory.Item{item}
	} else {
		err = json.Unmarshal(body, &items)
	}
	if err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	saved, err := s.service.SaveItems(items)
	if err != nil {
		slog.Error("Error saving items", "error", err)
		jsonError(w, err.Error(), storeErrorStatus(err))
		return
	}

	if single {
		writeJSON(w, http.StatusCreated, saved[0])
		return
	}
	writeJSON(w, http.StatusCreated, saved)
}

// handleGetItem returns a single inventory item
func (s *Server) handleGetItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetItem(r.PathValue("id"))
	if err != nil {
		corsError(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleUpdateItem replaces an inventory item
func (s *Server) handleUpdateItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.Item
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.UpdateItem(r.PathValue("id"), &item); err != nil {
		jsonError(w, err.Error(), storeErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteItem deletes an inventory item
func (s *Server) handleDeleteItem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteItem(r.PathValue("id")); err != nil {
		corsError(w, "Error deleting item", storeErrorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// handleListGroceryItems returns the grocery list
func (s *Server) handleListGroceryItems(w http.ResponseWriter, r *http.Request) {
	items, err := s.service.ListGroceryItems()
	if err != nil {
		slog.Error("Error listing grocery items", "error", err)
		corsError(w, "Internal server error", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, items)
}

// handleCreateGroceryItem adds an item to the grocery list
func (s *Server) handleCreateGroceryItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.GroceryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.AddGroceryItem(&item); err != nil {
		slog.Error("Error adding grocery item", "error", err)
		jsonError(w, err.Error(), storeErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusCreated, item)
}

// handleGetGroceryItem returns a single grocery item
func (s *Server) handleGetGroceryItem(w http.ResponseWriter, r *http.Request) {
	item, err := s.service.GetGroceryItem(r.PathValue("id"))
	if err != nil {
		corsError(w, "Item not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleUpdateGroceryItem replaces a grocery item
func (s *Server) handleUpdateGroceryItem(w http.ResponseWriter, r *http.Request) {
	var item inventory.GroceryItem
	if err := json.NewDecoder(r.Body).Decode(&item); err != nil {
		corsError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := s.service.UpdateGroceryItem(r.PathValue("id"), &item); err != nil {
		jsonError(w, err.Error(), storeErrorStatus(err))
		return
	}
	writeJSON(w, http.StatusOK, item)
}

// handleDeleteGroceryItem deletes a grocery item
func (s *Server) handleDeleteGroceryItem(w http.ResponseWriter, r *http.Request) {
	if err := s.service.DeleteGroceryItem(r.PathValue("id")); err != nil {
		corsError(w, "Error deleting item", storeErrorStatus(err))
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func storeErrorStatus(err error) int {
	switch {
	case errors.Is(err, ErrInvalidItem):
		return http.StatusBadRequest
	case errors.Is(err, inventory.ErrNotFound):
		return http.StatusNotFound
	}
	return http.StatusInternalServerError
}
