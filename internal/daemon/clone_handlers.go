package daemon

import (
	"encoding/json"
	"mime/multipart"
	"net/http"
	"strings"

	"mimic/internal/api"
	"mimic/internal/ingest"
	"mimic/internal/logging"
	"mimic/internal/media"
	"mimic/internal/registry"
)

// maxMultipartMemory bounds the in-memory portion of multipart parsing;
// larger payloads spool to temp files.
const maxMultipartMemory = 32 << 20

func ownerFromRequest(r *http.Request) string {
	if owner := strings.TrimSpace(r.Header.Get("X-Owner-ID")); owner != "" {
		return owner
	}
	return strings.TrimSpace(r.FormValue("ownerId"))
}

func (s *apiServer) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.daemon.ingest == nil {
		s.writeError(w, http.StatusServiceUnavailable, "ingestion unavailable")
		return
	}

	maxBytes := int64(s.daemon.cfg.Ingest.MaxUploadMiB) << 20
	if maxBytes <= 0 {
		maxBytes = media.MaxUploadBytes
	}
	// One request can carry up to one file per bucket.
	r.Body = http.MaxBytesReader(w, r.Body, maxBytes*int64(len(media.AllBuckets()))+maxMultipartMemory)
	if err := r.ParseMultipartForm(maxMultipartMemory); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid multipart payload: "+err.Error())
		return
	}
	defer func() {
		_ = r.MultipartForm.RemoveAll()
	}()

	owner := ownerFromRequest(r)
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "owner id is required")
		return
	}

	// Validate every part before touching any payload: one bad field must
	// reject the whole request without uploading the rest.
	type formPart struct {
		field  string
		bucket media.Bucket
		header *multipart.FileHeader
	}
	var parts []formPart
	for field, headers := range r.MultipartForm.File {
		bucket, ok := media.BucketForField(field)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown upload field "+field)
			return
		}
		if len(headers) == 0 {
			continue
		}
		header := headers[0]
		if err := media.Validate(bucket, header.Filename, header.Header.Get("Content-Type"), header.Size, maxBytes); err != nil {
			s.writeServiceError(w, err)
			return
		}
		parts = append(parts, formPart{field: field, bucket: bucket, header: header})
	}

	files := make(map[string]api.IngestedFile)
	for _, part := range parts {
		result, err := s.ingestOne(r, owner, part.bucket, part.header)
		if err != nil {
			s.writeServiceError(w, err)
			return
		}
		files[part.field] = api.IngestedFile{
			Bucket:      string(part.bucket),
			URL:         result.URL,
			ContentHash: result.ContentHash,
			StoragePath: result.StoragePath,
			ByteSize:    result.ByteSize,
			Duplicate:   result.Duplicate,
		}
	}
	if len(files) == 0 {
		s.writeError(w, http.StatusBadRequest, "no media files provided")
		return
	}

	s.writeJSON(w, http.StatusOK, api.IngestResponse{Success: true, Files: files})
}

func (s *apiServer) ingestOne(r *http.Request, owner string, bucket media.Bucket, header *multipart.FileHeader) (ingest.Result, error) {
	file, err := header.Open()
	if err != nil {
		return ingest.Result{}, err
	}
	defer file.Close()

	return s.daemon.ingest.Ingest(r.Context(), ingest.Request{
		OwnerID:     owner,
		Bucket:      bucket,
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
		Size:        header.Size,
		Content:     file,
	})
}

func (s *apiServer) handleCreate(w http.ResponseWriter, r *http.Request) {
	var req api.CreateCloneRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}
	owner := strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	if owner == "" {
		owner = strings.TrimSpace(req.OwnerID)
	}
	if owner == "" {
		s.writeError(w, http.StatusBadRequest, "owner id is required")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		s.writeError(w, http.StatusBadRequest, "clone name is required")
		return
	}

	record, err := s.daemon.orch.CreateClone(r.Context(), owner, name, req.AudioURL, req.ImageURL, req.SubmitOptions())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.log().Info("clone job accepted",
		logging.String(logging.FieldCloneID, record.ID),
		logging.String(logging.FieldOwner, owner))
	s.writeJSON(w, http.StatusAccepted, api.CloneResponse{Success: true, Clone: api.FromRecord(record)})
}

func (s *apiServer) handleCloneStatus(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupClone(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.CloneResponse{Success: true, Clone: api.FromRecord(record)})
}

func (s *apiServer) handleListSaved(w http.ResponseWriter, r *http.Request) {
	owner := strings.TrimSpace(r.URL.Query().Get("owner"))
	if owner == "" {
		owner = strings.TrimSpace(r.Header.Get("X-Owner-ID"))
	}

	var statuses []registry.Status
	for _, value := range r.URL.Query()["status"] {
		status, ok := registry.ParseStatus(value)
		if !ok {
			s.writeError(w, http.StatusBadRequest, "unknown status "+value)
			return
		}
		statuses = append(statuses, status)
	}

	records, err := s.daemon.store.List(r.Context(), owner, statuses...)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CloneListResponse{Success: true, Clones: api.FromRecords(records)})
}

func (s *apiServer) handleGetSaved(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupClone(w, r)
	if !ok {
		return
	}
	s.writeJSON(w, http.StatusOK, api.CloneResponse{Success: true, Clone: api.FromRecord(record)})
}

func (s *apiServer) handleUseSaved(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupClone(w, r)
	if !ok {
		return
	}
	updated, err := s.daemon.store.RecordUsage(r.Context(), record.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CloneResponse{Success: true, Clone: api.FromRecord(updated)})
}

func (s *apiServer) handleDeleteSaved(w http.ResponseWriter, r *http.Request) {
	record, ok := s.lookupClone(w, r)
	if !ok {
		return
	}

	// Best effort: release the provider-side job before dropping the record.
	if s.daemon.synth != nil && record.JobID != "" && !record.Status.IsTerminal() {
		if err := s.daemon.synth.Delete(r.Context(), record.JobID); err != nil {
			s.log().Warn("failed to delete provider job",
				logging.String(logging.FieldJobID, record.JobID),
				logging.Error(err))
		}
	}

	deleted, err := s.daemon.store.Remove(r.Context(), record.ID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.DeleteResponse{Success: true, Deleted: deleted})
}

func (s *apiServer) handleCancelJob(w http.ResponseWriter, r *http.Request) {
	jobID := strings.TrimSpace(r.PathValue("jobId"))
	if jobID == "" {
		s.writeError(w, http.StatusBadRequest, "job id is required")
		return
	}
	record, err := s.daemon.orch.CancelJob(r.Context(), jobID)
	if err != nil {
		s.writeServiceError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.CloneResponse{Success: true, Clone: api.FromRecord(record)})
}

// lookupClone resolves the {id} path segment to a record, writing the error
// response itself when the record cannot be served.
func (s *apiServer) lookupClone(w http.ResponseWriter, r *http.Request) (*registry.CloneRecord, bool) {
	id := strings.TrimSpace(r.PathValue("id"))
	if id == "" {
		s.writeError(w, http.StatusBadRequest, "clone id is required")
		return nil, false
	}
	record, err := s.daemon.store.GetByID(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, err)
		return nil, false
	}
	if record == nil {
		s.writeError(w, http.StatusNotFound, "clone not found")
		return nil, false
	}
	return record, true
}
