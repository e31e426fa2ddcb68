package server_test

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pleiades-agents/pleiades/citest/testutil"
)

var _ = Describe("Registry Reload", func() {
	var (
		ts   *testutil.TestServer
		c    *testutil.TestClient
		sse  *testutil.SSEClient
		base string
	)

	BeforeEach(func() {
		var err error
		ts, err = testutil.StartTestServer()
		Expect(err).NotTo(HaveOccurred())
		c = ts.Client()

		info, err := c.Registry(ctx)
		Expect(err).NotTo(HaveOccurred())
		base = info.ID

		sse = ts.SSEClient()
		Expect(sse.Connect(ctx, "/event?type=registry.loaded,registry.reload_failed")).To(Succeed())
		_, err = sse.WaitForEvent("server.connected", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if sse != nil {
			sse.Close()
		}
		if ts != nil {
			ts.Stop()
		}
	})

	It("should pick up a new agent written to disk", func() {
		Expect(testutil.WriteAgent(ts.AgentsDir, testutil.AgentFixture{
			Name: "incident-commander", Description: "Runs incident response",
			Tier: "strategic", Category: "operations",
			Keywords: []string{"outage", "incident"},
		})).To(Succeed())

		_, err := sse.WaitForEvent("registry.loaded", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())

		Eventually(func() int {
			info, _ := c.Registry(ctx)
			return info.Agents
		}, 5*time.Second, 50*time.Millisecond).Should(Equal(5))

		decision, _, err := c.Select(ctx, "we have an outage", "")
		Expect(err).NotTo(HaveOccurred())
		Expect(decision.Agent).To(Equal("incident-commander"))
	})

	It("should keep serving the previous snapshot when a change is invalid", func() {
		Expect(testutil.WriteRaw(ts.AgentsDir, "broken-agent", "name: broken-agent\ntier: operational\n")).To(Succeed())

		evt, err := sse.WaitForEvent("registry.reload_failed", 10*time.Second)
		Expect(err).NotTo(HaveOccurred())

		var props struct {
			ServingID  string `json:"servingID"`
			Violations []struct {
				Agent string `json:"agent"`
				Rule  string `json:"rule"`
			} `json:"violations"`
		}
		Expect(evt.Decode(&props)).To(Succeed())
		Expect(props.ServingID).To(Equal(base))
		Expect(props.Violations).NotTo(BeEmpty())

		info, err := c.Registry(ctx)
		Expect(err).NotTo(HaveOccurred())
		Expect(info.ID).To(Equal(base))
		Expect(info.Agents).To(Equal(4))
	})

	It("should report violations on a manual reload", func() {
		Expect(testutil.WriteAgent(ts.AgentsDir, testutil.AgentFixture{
			Name: "orphan-lead", Description: "Delegates to nobody real",
			Tier: "strategic", Keywords: []string{"orphan"},
			DelegatesTo: []string{"ghost"},
		})).To(Succeed())

		resp, err := c.Post(ctx, "/registry/reload", nil)
		Expect(err).NotTo(HaveOccurred())
		Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
		Expect(resp.ErrorCode()).To(Equal("VALIDATION_FAILED"))
		Expect(resp.String()).To(ContainSubstring("dangling-delegate"))
	})

	It("should drop a removed agent", func() {
		Expect(testutil.RemoveAgent(ts.AgentsDir, "changelog-drafter")).To(Succeed())

		Eventually(func() []string {
			agents, _ := c.ListAgents(ctx, nil)
			names := make([]string, 0, len(agents))
			for _, a := range agents {
				names = append(names, a.Name)
			}
			return names
		}, 5*time.Second, 50*time.Millisecond).ShouldNot(ContainElement("changelog-drafter"))
	})
})
