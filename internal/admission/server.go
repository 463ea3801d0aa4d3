package admission

import (
	"context"
	"encoding/json"
	"io"
	"net/http"

	"github.com/innoq/project-selfservice-operator/pkg/health"
	"github.com/innoq/project-selfservice-operator/pkg/logger"
	tracepropagation "github.com/innoq/project-selfservice-operator/pkg/otel"
	"go.opentelemetry.io/otel"
	admissionv1 "k8s.io/api/admission/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes/scheme"
)

const tracerName = "project-selfservice-operator/admission"

// Server serves the Project admission webhook over HTTP.
type Server struct {
	log       logger.Logger
	validator *Validator
	metrics   *health.MetricsServer
	decoder   func([]byte, *admissionv1.AdmissionReview) error
}

// NewServer builds a Server backed by validator. metrics may be nil,
// in which case admission decisions are logged but not counted.
func NewServer(log logger.Logger, validator *Validator, metrics *health.MetricsServer) *Server {
	deserializer := scheme.Codecs.UniversalDeserializer()
	return &Server{
		log:       log,
		validator: validator,
		metrics:   metrics,
		decoder: func(data []byte, review *admissionv1.AdmissionReview) error {
			_, _, err := deserializer.Decode(data, nil, review)
			return err
		},
	}
}

// Handler returns the http.HandlerFunc to mount at the
// ValidatingWebhookConfiguration's path.
func (s *Server) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := tracepropagation.ExtractTraceContextFromHeaders(r.Context(), r.Header)
		ctx, span := otel.Tracer(tracerName).Start(ctx, "Admit")
		defer span.End()

		var req, resp admissionv1.AdmissionReview

		data, err := io.ReadAll(r.Body)
		if err != nil {
			s.log.Errorf(ctx, "reading admission request body: %v", err)
			resp.Response = deny(err.Error())
		} else if err := s.decoder(data, &req); err != nil {
			s.log.Errorf(ctx, "decoding admission request: %v", err)
			resp.Response = deny(err.Error())
		} else {
			resp.Response = s.admit(ctx, &req)
		}

		if s.metrics != nil && resp.Response != nil {
			decision := "deny"
			if resp.Response.Allowed {
				decision = "allow"
			}
			s.metrics.RecordAdmissionDecision(decision)
		}

		if req.Request != nil {
			resp.APIVersion = "admission.k8s.io/v1"
			resp.Kind = "AdmissionReview"
			resp.Response.UID = req.Request.UID
		}

		w.Header().Set("Content-Type", "application/json")
		if err := json.NewEncoder(w).Encode(resp); err != nil {
			s.log.Errorf(ctx, "encoding admission response: %v", err)
		}
	}
}

func (s *Server) admit(ctx context.Context, req *admissionv1.AdmissionReview) *admissionv1.AdmissionResponse {
	if req.Request == nil {
		return deny("admission review carries no request")
	}

	project, err := decodeProject(req.Request.Object.Raw)
	if err != nil {
		return deny(err.Error())
	}

	reason, err := s.validator.Validate(ctx, project)
	if err != nil {
		s.log.Errorf(ctx, "validating project %q: %v", project.Name, err)
		return deny(err.Error())
	}
	if reason != "" {
		s.log.Infof(ctx, "denying project %q: %s", project.Name, reason)
		return deny(reason)
	}

	return &admissionv1.AdmissionResponse{Allowed: true}
}

// deny builds an AdmissionResponse for one of spec §4.7's denial
// reasons: status Failure, reason left unset ("null" on the wire),
// message the denial text.
func deny(message string) *admissionv1.AdmissionResponse {
	return &admissionv1.AdmissionResponse{
		Allowed: false,
		Result: &metav1.Status{
			Status:  metav1.StatusFailure,
			Message: message,
		},
	}
}
