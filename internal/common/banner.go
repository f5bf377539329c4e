package common

import (
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner
func PrintBanner(version string) {
	banner.PrintSimple("Fibreflow", version)
}

// PrintWorkerBanner displays the worker service banner
func PrintWorkerBanner(version string) {
	banner.PrintSimple("Fibreflow Worker", version)
}
