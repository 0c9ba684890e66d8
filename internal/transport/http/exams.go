package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"quizdesk-service/internal/app"
	"quizdesk-service/internal/auth"
	"quizdesk-service/internal/domain"
)

const maxImageBytes = 10 << 20

func (s *Server) listExams(w http.ResponseWriter, r *http.Request) {
	exams, err := s.Exams.ListExams(r.Context(), auth.PrincipalFrom(r.Context()))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exams)
}

func (s *Server) getExam(w http.ResponseWriter, r *http.Request) {
	detail, err := s.Exams.GetExam(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

func (s *Server) createExam(w http.ResponseWriter, r *http.Request) {
	var in app.ExamInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	exam, err := s.Exams.CreateExam(r.Context(), auth.PrincipalFrom(r.Context()), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, exam)
}

func (s *Server) updateExam(w http.ResponseWriter, r *http.Request) {
	var in app.ExamInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	exam, err := s.Exams.UpdateExam(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, exam)
}

func (s *Server) deleteExam(w http.ResponseWriter, r *http.Request) {
	if err := s.Exams.DeleteExam(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID")); err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) addQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.Exams.AddQuestion(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, q)
}

func (s *Server) importQuestions(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Questions []app.QuestionInput `json:"questions"`
	}
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	added, err := s.Exams.ImportQuestions(r.Context(), auth.PrincipalFrom(r.Context()), chi.URLParam(r, "examID"), in.Questions)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, added)
}

func (s *Server) updateQuestion(w http.ResponseWriter, r *http.Request) {
	var in app.QuestionInput
	if err := decode(w, r, &in); err != nil {
		s.writeError(w, r, err)
		return
	}
	q, err := s.Exams.UpdateQuestion(r.Context(), auth.PrincipalFrom(r.Context()),
		chi.URLParam(r, "examID"), chi.URLParam(r, "questionID"), in)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, q)
}

func (s *Server) deleteQuestion(w http.ResponseWriter, r *http.Request) {
	err := s.Exams.DeleteQuestion(r.Context(), auth.PrincipalFrom(r.Context()),
		chi.URLParam(r, "examID"), chi.URLParam(r, "questionID"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// uploadImage takes a multipart "file" and an optional "questionId" field;
// without a question the image becomes the exam cover.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxImageBytes+1<<20)
	if err := r.ParseMultipartForm(maxImageBytes); err != nil {
		s.writeError(w, r, domain.Errorf(domain.KindValidation, "invalid multipart form: %v", err))
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		s.writeError(w, r, domain.Errorf(domain.KindValidation, "file is required"))
		return
	}
	defer file.Close()

	ref, err := s.Exams.UploadImage(r.Context(), auth.PrincipalFrom(r.Context()),
		chi.URLParam(r, "examID"), r.FormValue("questionId"),
		header.Filename, file, header.Size, header.Header.Get("Content-Type"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"url": ref})
}
