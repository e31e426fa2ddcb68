package server_test

import (
	"net/http"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pleiades-agents/pleiades/citest/testutil"
)

var _ = Describe("Server Endpoints Integration Tests", func() {

	// ==================== Routing ====================
	Describe("POST /select", func() {
		It("should route by keyword", func() {
			decision, resp, err := client.Select(ctx, "Please write a git commit message", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decision.Agent).To(Equal("commit-writer"))
			Expect(*decision.Score).To(Equal(2))
			Expect(decision.RegistryID).NotTo(BeEmpty())
		})

		It("should prefer strategic agents on a tie", func() {
			decision, _, err := client.Select(ctx, "rotate the API KEY", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Agent).To(Equal("security-lead"))
			Expect(decision.Candidates).To(HaveLen(2))
			Expect(decision.Candidates[1].Name).To(Equal("secret-scanner"))
		})

		It("should report ambiguity with the default hint", func() {
			decision, resp, err := client.Select(ctx, "plan the team offsite", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(decision.Ambiguous).To(BeTrue())
			Expect(decision.Agent).To(BeEmpty())
			Expect(decision.DefaultAgent).To(Equal("commit-writer"))
		})

		It("should route to draft agents unless excluded", func() {
			decision, _, err := client.Select(ctx, "update the changelog", "")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Agent).To(Equal("changelog-drafter"))

			resp, err := client.Post(ctx, "/select", map[string]any{"task": "update the changelog", "excludeDraft": true})
			Expect(err).NotTo(HaveOccurred())
			var excluded testutil.Decision
			Expect(resp.JSON(&excluded)).To(Succeed())
			Expect(excluded.Ambiguous).To(BeTrue())
		})

		It("should honor an explicit agent", func() {
			decision, _, err := client.Select(ctx, "anything at all", "changelog-drafter")
			Expect(err).NotTo(HaveOccurred())
			Expect(decision.Agent).To(Equal("changelog-drafter"))
			Expect(decision.Explicit).To(BeTrue())
			Expect(decision.Score).To(BeNil())
		})

		It("should return 404 with suggestions for an unknown agent", func() {
			_, resp, err := client.Select(ctx, "x", "secret-scaner")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			Expect(resp.ErrorCode()).To(Equal("NOT_FOUND"))
			Expect(resp.String()).To(ContainSubstring("secret-scanner"))
		})

		It("should reject an invalid tier", func() {
			resp, err := client.Post(ctx, "/select", map[string]any{"task": "x", "tier": "operational"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	// ==================== Planning ====================
	Describe("POST /plan", func() {
		It("should plan delegation for a strategic agent", func() {
			resp, err := client.Post(ctx, "/plan", map[string]any{
				"agent":    "security-lead",
				"task":     "security review of the payments service",
				"severity": "critical",
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var plan struct {
				Agent     string                  `json:"agent"`
				Severity  string                  `json:"severity"`
				Delegates []testutil.AgentSummary `json:"delegates"`
				Steps     []struct {
					Action     string `json:"action"`
					DelegateTo string `json:"delegateTo"`
				} `json:"steps"`
			}
			Expect(resp.JSON(&plan)).To(Succeed())
			Expect(plan.Severity).To(Equal("critical"))
			Expect(plan.Delegates).To(HaveLen(1))
			Expect(plan.Delegates[0].Name).To(Equal("secret-scanner"))
			Expect(plan.Steps[len(plan.Steps)-1].DelegateTo).To(Equal("secret-scanner"))
		})

		It("should plan without delegates for a tactical agent", func() {
			resp, err := client.Post(ctx, "/plan", map[string]any{"agent": "commit-writer", "task": "git commit"})
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.String()).To(ContainSubstring(`"delegates":[]`))
		})
	})

	// ==================== Agents ====================
	Describe("GET /agent", func() {
		It("should list every agent in name order", func() {
			agents, err := client.ListAgents(ctx, nil)
			Expect(err).NotTo(HaveOccurred())

			names := make([]string, 0, len(agents))
			for _, a := range agents {
				names = append(names, a.Name)
			}
			Expect(names).To(Equal([]string{"changelog-drafter", "commit-writer", "secret-scanner", "security-lead"}))
		})

		It("should filter by tier and category", func() {
			agents, err := client.ListAgents(ctx, map[string]string{"tier": "tactical", "category": "security"})
			Expect(err).NotTo(HaveOccurred())
			Expect(agents).To(HaveLen(1))
			Expect(agents[0].Name).To(Equal("secret-scanner"))
		})

		It("should return an empty list for an unknown category", func() {
			resp, err := client.Get(ctx, "/agent", testutil.WithQuery(map[string]string{"category": "cooking"}))
			Expect(err).NotTo(HaveOccurred())
			Expect(strings.TrimSpace(resp.String())).To(Equal("[]"))
		})
	})

	Describe("GET /agent/{name}", func() {
		It("should return the full definition", func() {
			resp, err := client.Get(ctx, "/agent/security-lead")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var def map[string]any
			Expect(resp.JSON(&def)).To(Succeed())
			Expect(def["tier"]).To(Equal("strategic"))
			Expect(def["delegatesTo"]).To(ConsistOf("secret-scanner"))
		})

		It("should return 404 for an unknown agent", func() {
			resp, err := client.Get(ctx, "/agent/nobody")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("GET /agent/{name}/instructions", func() {
		It("should serve AGENT.md from disk", func() {
			resp, err := client.Get(ctx, "/agent/commit-writer/instructions", testutil.WithHeader("Accept", "text/markdown"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.String()).To(Equal("# Commit Writer\n\nWrite conventional commits.\n"))
		})

		It("should return 404 when the agent has no AGENT.md", func() {
			resp, err := client.Get(ctx, "/agent/secret-scanner/instructions")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	// ==================== Registry ====================
	Describe("GET /registry", func() {
		It("should describe the serving snapshot", func() {
			info, err := client.Registry(ctx)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Agents).To(Equal(4))
			Expect(info.Strategic).To(Equal(1))
			Expect(info.Categories).To(Equal([]string{"development", "documentation", "security"}))
		})
	})

	Describe("GET /health", func() {
		It("should report healthy", func() {
			resp, err := client.Get(ctx, "/health")
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.String()).To(ContainSubstring(`"version":"citest"`))
		})
	})

	Describe("GET /metrics", func() {
		It("should expose Prometheus metrics", func() {
			resp, err := client.Get(ctx, "/metrics", testutil.WithHeader("Accept", "text/plain"))
			Expect(err).NotTo(HaveOccurred())
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.String()).To(ContainSubstring("pleiades_registry_agents 4"))
		})
	})
})
