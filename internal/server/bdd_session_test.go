package server

import (
	"bytes"
	"encoding/json"
	"net/http"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// Grounded in citest/server/response_test.go and endpoints_test.go: Describe
// blocks per concern (success responses, error responses, CORS), It blocks
// asserting status code and envelope shape against a live HTTP server.
var _ = Describe("Session HTTP surface", func() {
	var (
		up  *testServerUpstream
		srv *testServer
	)

	BeforeEach(func() {
		up = newBDDUpstream(nil)
		srv = newBDDServer(up.URL)
	})

	AfterEach(func() {
		srv.Close()
		up.Close()
	})

	Describe("GET /api/v1/health", func() {
		It("returns 200 when the upstream daemon is reachable", func() {
			resp, err := http.Get(srv.URL + "/api/v1/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("POST /api/v1/sessions", func() {
		It("creates a session and returns its id", func() {
			resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", bytes.NewBufferString(`{"model":"llama3"}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var body map[string]any
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body["session_id"]).NotTo(BeEmpty())
		})

		It("rejects a request with no model", func() {
			resp, err := http.Post(srv.URL+"/api/v1/sessions", "application/json", bytes.NewBufferString(`{}`))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("GET /api/v1/sessions/{id}", func() {
		It("returns 404 for an unknown session", func() {
			resp, err := http.Get(srv.URL + "/api/v1/sessions/does-not-exist")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			var body ErrorResponse
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Error.Code).To(Equal(ErrCodeSessionNotFound))
		})
	})

	Describe("CORS", func() {
		It("answers an OPTIONS preflight for the sessions route", func() {
			req, err := http.NewRequest(http.MethodOptions, srv.URL+"/api/v1/sessions", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Origin", "http://example.com")
			req.Header.Set("Access-Control-Request-Method", "POST")

			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Access-Control-Allow-Methods")).NotTo(BeEmpty())
		})
	})
})
