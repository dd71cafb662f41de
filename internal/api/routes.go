package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes mounts the REST and JSON-RPC surface. Writes act as the address in
// CallerHeader, which is not authenticated; outside dev the router must only
// be reachable through a proxy that sets that header for verified callers.
func (h *Handler) Routes(m *Middleware, corsOrigins []string, rateLimitRPM int) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(m.RequestID)
	r.Use(m.RequestLogger)
	r.Use(m.Recoverer)
	r.Use(m.SecurityHeaders)
	r.Use(m.Compress)
	r.Use(middleware.Heartbeat("/ping"))

	// CORS and rate limiting - configured from main
	r.Use(m.CORS(corsOrigins))
	r.Use(m.RateLimit(rateLimitRPM))

	// Health endpoints
	r.Get("/healthz", h.Healthz)
	r.Get("/readyz", h.Readyz)

	r.Route("/v1", func(r chi.Router) {
		// Live updates stay outside the request timeout
		r.Get("/stream", h.HandleSSE)
		r.Get("/ws", h.HandleWebSocket)

		r.Group(func(r chi.Router) {
			r.Use(m.Timeout(15 * time.Second))

			r.Post("/jsonrpc", h.HandleJSONRPC)

			r.Route("/vault", func(r chi.Router) {
				r.Post("/init", h.InitVault)
				r.Post("/accounts/{kind}", h.InitSubAccount)
				r.Post("/stake", h.Stake)
				r.Post("/unstake", h.Unstake)
				r.Post("/withdraw", h.Withdraw)
				r.Post("/rewards", h.DistributeReward)
				r.Post("/emergency/{kind}", h.EmergencyWithdraw)
				r.Post("/redistribute", h.RedistributeLocked)
				r.Post("/cooldown", h.AdjustCooldown)
				r.Post("/collateral/deposit", h.DepositCollateral)
				r.Post("/collateral/redeem", h.RedeemCollateral)
				r.Post("/admin/propose", h.ProposeAdmin)
				r.Post("/admin/accept", h.AcceptAdmin)

				r.Get("/state", h.GetState)
				r.Get("/cooldowns/{owner}/{receiver}", h.GetCooldown)
				r.Get("/preview/deposit", h.PreviewDeposit)
				r.Get("/preview/redeem", h.PreviewRedeem)
				r.Get("/events", h.ListEvents)
			})

			r.Post("/roles", h.GrantRole)
			r.Delete("/roles", h.RevokeRole)
			r.Post("/denylist", h.DenyAdd)
			r.Delete("/denylist/{address}", h.DenyRemove)
			r.Post("/tokens/mint", h.MintTokens)
			r.Post("/tokens/approve", h.Approve)
			r.Get("/accounts/{address}/balances", h.GetBalances)
		})
	})

	return r
}
