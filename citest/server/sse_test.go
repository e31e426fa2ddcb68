package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("SSE Event Streaming", func() {

	Describe("GET /event", func() {
		It("should return SSE headers", func() {
			req, err := http.NewRequest("GET", testServer.BaseURL+"/event", nil)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Accept", "text/event-stream")

			httpClient := &http.Client{Timeout: 5 * time.Second}
			resp, err := httpClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()

			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/event-stream"))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-cache"))
		})

		It("should greet with the serving registry", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event")).To(Succeed())
			defer sseClient.Close()

			evt, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var props struct {
				Registry string `json:"registry"`
			}
			Expect(evt.Decode(&props)).To(Succeed())
			Expect(props.Registry).To(Equal(testServer.Dispatcher.Snapshot().ID()))
		})

		It("should deliver routing events", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event")).To(Succeed())
			defer sseClient.Close()

			_, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			decision, _, err := client.Select(ctx, "scan for a leaked credential", "")
			Expect(err).NotTo(HaveOccurred())

			evt, err := sseClient.WaitForEvent("route.selected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			var props struct {
				DecisionID string `json:"decisionID"`
				Agent      string `json:"agent"`
			}
			Expect(evt.Decode(&props)).To(Succeed())
			Expect(props.DecisionID).To(Equal(decision.ID))
			Expect(props.Agent).To(Equal("secret-scanner"))
		})

		It("should honor the type filter", func() {
			sseClient := testServer.SSEClient()
			Expect(sseClient.Connect(ctx, "/event?type=plan.created")).To(Succeed())
			defer sseClient.Close()

			_, err := sseClient.WaitForEvent("server.connected", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())

			_, _, err = client.Select(ctx, "git commit", "")
			Expect(err).NotTo(HaveOccurred())
			_, err = client.Post(ctx, "/plan", map[string]any{"agent": "commit-writer", "task": "git commit"})
			Expect(err).NotTo(HaveOccurred())

			_, err = sseClient.WaitForEvent("plan.created", 5*time.Second)
			Expect(err).NotTo(HaveOccurred())
			Expect(sseClient.HasEventType("route.selected")).To(BeFalse())
		})
	})
})
