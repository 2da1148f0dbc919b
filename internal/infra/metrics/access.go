package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() {
	register(
		inviteLinksCreatedTotal,
		membersRemovedTotal,
		chatRateLimitedTotal,
	)
}

var (
	inviteLinksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_invite_links_created_total",
			Help: "Total single-use invite links created.",
		},
	)

	membersRemovedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_members_removed_total",
			Help: "Total group removals performed by revocation paths.",
		},
	)

	chatRateLimitedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "access_chat_rate_limited_total",
			Help: "Total chat API calls rejected with a rate limit.",
		},
	)
)

func IncInviteLinksCreated(count int) {
	inviteLinksCreatedTotal.Add(float64(count))
}

func IncMembersRemoved(count int) {
	membersRemovedTotal.Add(float64(count))
}

func IncChatRateLimited() {
	chatRateLimitedTotal.Inc()
}
