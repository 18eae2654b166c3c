package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[RegisterBrandMessage]    = (*RegisterBrandCommand)(nil)
	_ gocmd.Commander[SubmitCampaignMessage]   = (*SubmitCampaignCommand)(nil)
	_ gocmd.Commander[ReconcilePendingMessage] = (*ReconcilePendingCommand)(nil)
)
