package server

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/docflow/constants"
	"github.com/joseph-ayodele/docflow/internal/common"
	"github.com/joseph-ayodele/docflow/internal/pipeline"
	"github.com/joseph-ayodele/docflow/internal/record"
	"github.com/joseph-ayodele/docflow/internal/repository"
)

const (
	multipartMemory = 8 << 20
	sniffLen        = 512
)

// savedUpload is an upload copied into the upload directory.
type savedUpload struct {
	Name      string
	Path      string
	MediaType string
}

type listResponse struct {
	Data    any                   `json:"data"`
	Results []pipeline.FileResult `json:"results,omitempty"`
}

// handleUpload serves the single-file endpoints: save, type check, process, persist, list.
func (s *Server) handleUpload(kind constants.FileKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := common.LoggerFromContext(ctx, s.logger).With("kind", string(kind))

		files, err := s.parseFiles(r, constants.FieldFile)
		if err != nil {
			s.writeParseError(w, err, "No file uploaded")
			return
		}
		defer s.cleanupForm(r)
		if len(files) == 0 {
			writeError(w, common.ValidationError("No file uploaded"), log)
			return
		}

		up, err := s.saveUpload(files[0])
		if err != nil {
			log.Error("upload.save.failed", "error", err)
			writeError(w, common.ExtractionError(kind.FailureMessage(), err).WithDetails(err.Error()), log)
			return
		}
		defer s.removeUpload(up.Path)

		if !kind.Accepts(up.MediaType) {
			log.Info("upload.rejected", "file", up.Name, "media_type", up.MediaType)
			writeError(w, common.ValidationError(kind.RejectMessage()), log)
			return
		}

		out, err := s.deps.Processor.Process(common.WithFileName(ctx, up.Name), kind, up.Path)
		if err != nil {
			writeError(w, err, log)
			return
		}

		if _, err := s.deps.Staging.InsertBatch(ctx, []record.Flat{out.Flat}); err != nil {
			log.Error("upload.persist.failed", "error", err)
			writeError(w, common.PersistenceError(kind.FailureMessage(), err).WithDetails(err.Error()), log)
			return
		}

		s.respondAll(w, r, s.deps.Staging, nil)
	}
}

// handleUploadBatch serves the multi-file endpoints. Per-file failures land in results; the
// successful files are inserted together and the full document set is always returned.
func (s *Server) handleUploadBatch(kind constants.FileKind) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		log := common.LoggerFromContext(ctx, s.logger).With("kind", string(kind))

		files, err := s.parseFiles(r, constants.FieldFiles)
		if err != nil {
			s.writeParseError(w, err, "No files uploaded")
			return
		}
		defer s.cleanupForm(r)
		if len(files) == 0 {
			writeError(w, common.ValidationError("No files uploaded"), log)
			return
		}
		if len(files) > constants.MaxBatchFiles {
			writeError(w, common.ValidationError(fmt.Sprintf("Too many files. At most %d are allowed.", constants.MaxBatchFiles)), log)
			return
		}

		uploads := make([]pipeline.Upload, 0, len(files))
		for _, fh := range files {
			up, err := s.saveUpload(fh)
			if err != nil {
				log.Error("upload.save.failed", "file", fh.Filename, "error", err)
				uploads = append(uploads, pipeline.Upload{
					Name:     fh.Filename,
					Rejected: common.ExtractionError(kind.FailureMessage(), err).WithDetails(err.Error()),
				})
				continue
			}
			defer s.removeUpload(up.Path)

			u := pipeline.Upload{Name: up.Name, Path: up.Path}
			if !kind.Accepts(up.MediaType) {
				log.Info("upload.rejected", "file", up.Name, "media_type", up.MediaType)
				u.Rejected = common.ValidationError(kind.RejectMessage())
			}
			uploads = append(uploads, u)
		}

		results, flats := s.deps.Processor.ProcessBatch(ctx, kind, uploads)

		if len(flats) > 0 {
			if _, err := s.deps.Staging.InsertBatch(ctx, flats); err != nil {
				log.Error("upload.batch.persist_failed", "rows", len(flats), "error", err)
				for i := range results {
					if results[i].Status == constants.FileStatusOK {
						results[i] = pipeline.ResultFor(results[i].File,
							common.PersistenceError("Failed to save document", err).WithDetails(err.Error()))
					}
				}
			}
		}

		rows, err := s.deps.Staging.ListAll(ctx)
		if err != nil {
			log.Error("upload.batch.list_failed", "error", err)
			writeError(w, common.PersistenceError(kind.BatchFailureMessage(), err).WithDetails(err.Error()), log)
			return
		}
		writeJSON(w, http.StatusOK, listResponse{Data: rows, Results: results}, log)
	}
}

func (s *Server) parseFiles(r *http.Request, field string) ([]*multipart.FileHeader, error) {
	if err := r.ParseMultipartForm(multipartMemory); err != nil {
		return nil, err
	}
	return r.MultipartForm.File[field], nil
}

func (s *Server) writeParseError(w http.ResponseWriter, err error, missing string) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeJSON(w, http.StatusRequestEntityTooLarge,
			errorBody{Error: fmt.Sprintf("Upload exceeds %d bytes", tooLarge.Limit)}, s.logger)
		return
	}
	writeError(w, common.ValidationError(missing).WithDetails(err.Error()), s.logger)
}

func (s *Server) cleanupForm(r *http.Request) {
	if r.MultipartForm != nil {
		_ = r.MultipartForm.RemoveAll()
	}
}

// saveUpload copies fh into the upload directory under a random name. The media type is the
// declared Content-Type, or sniffed from the first bytes when none useful was declared.
func (s *Server) saveUpload(fh *multipart.FileHeader) (savedUpload, error) {
	if err := os.MkdirAll(s.cfg.UploadDir, 0o755); err != nil {
		return savedUpload{}, fmt.Errorf("mkdir uploads: %w", err)
	}
	src, err := fh.Open()
	if err != nil {
		return savedUpload{}, fmt.Errorf("open upload: %w", err)
	}
	defer src.Close()

	name := uuid.NewString()
	if ext := constants.NormalizeExt(filepath.Ext(fh.Filename)); ext != "" {
		if _, ok := constants.AllowedExtensions[ext]; ok {
			name += "." + ext
		}
	}
	path := filepath.Join(s.cfg.UploadDir, name)

	dst, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return savedUpload{}, fmt.Errorf("create upload: %w", err)
	}

	head := make([]byte, sniffLen)
	n, err := io.ReadFull(src, head)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		_ = dst.Close()
		_ = os.Remove(path)
		return savedUpload{}, fmt.Errorf("read upload: %w", err)
	}
	head = head[:n]

	_, err = dst.Write(head)
	if err == nil {
		_, err = io.Copy(dst, src)
	}
	if cerr := dst.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(path)
		return savedUpload{}, fmt.Errorf("write upload: %w", err)
	}

	mediaType := constants.MediaType(fh.Header.Get("Content-Type"))
	if mediaType == "" || mediaType == constants.MIMEOctetStream {
		mediaType = constants.MediaType(http.DetectContentType(head))
	}
	return savedUpload{Name: fh.Filename, Path: path, MediaType: mediaType}, nil
}

func (s *Server) removeUpload(path string) {
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		s.logger.Warn("upload.cleanup_failed", "path", path, "error", err)
	}
}

func (s *Server) respondAll(w http.ResponseWriter, r *http.Request, store repository.DocumentRepository, results []pipeline.FileResult) {
	log := common.LoggerFromContext(r.Context(), s.logger)
	rows, err := store.ListAll(r.Context())
	if err != nil {
		log.Error("documents.list.failed", "error", err)
		writeError(w, common.PersistenceError("Failed to fetch documents", err), log)
		return
	}
	writeJSON(w, http.StatusOK, listResponse{Data: rows, Results: results}, log)
}
