package bootstrap

import (
	"fmt"
	"regexp"

	"zkcred-be/internal/config"
	"zkcred-be/internal/session"
	"zkcred-be/pkg/claim"
	"zkcred-be/pkg/extractor"
)

const (
	GradePortalName   = "nitw"
	GradeRecordType   = "nitw_cgpa"
	ProfilePortalName = "leetcode"
	ProfileRecordType = "leetcode_solved"
)

func browserConfig(cfg config.BrowserConfig) extractor.BrowserConfig {
	out := extractor.DefaultBrowserConfig()
	out.Bin = cfg.Bin
	out.Headless = cfg.Headless
	out.NoSandbox = cfg.NoSandbox
	if cfg.ViewportWidth > 0 && cfg.ViewportHeight > 0 {
		out.ViewportWidth = cfg.ViewportWidth
		out.ViewportHeight = cfg.ViewportHeight
	}
	if cfg.UserAgent != "" {
		out.UserAgent = cfg.UserAgent
	}
	if cfg.FrameInterval > 0 {
		out.FrameInterval = cfg.FrameInterval
	}
	if cfg.FrameQuality > 0 {
		out.FrameQuality = cfg.FrameQuality
	}
	if cfg.FrameMaxWidth > 0 {
		out.FrameMaxWidth = cfg.FrameMaxWidth
	}
	return out
}

// NewCatalogue registers the grade and profile portals.
func NewCatalogue(cfg *config.Config) (*session.Catalogue, error) {
	browser := browserConfig(cfg.Browser)
	grade := cfg.Portals.Grade
	profile := cfg.Portals.Profile

	pattern, err := regexp.Compile(grade.Pattern)
	if err != nil {
		return nil, fmt.Errorf("grade pattern: %w", err)
	}
	gradeCmp, err := claim.ParseComparator(grade.Comparator)
	if err != nil {
		return nil, fmt.Errorf("grade comparator: %w", err)
	}
	profileCmp, err := claim.ParseComparator(profile.Comparator)
	if err != nil {
		return nil, fmt.Errorf("profile comparator: %w", err)
	}

	return session.NewCatalogue(
		session.Portal{
			Name:       GradePortalName,
			RecordType: GradeRecordType,
			Claim:      claim.Claim{Kind: claim.KindGradeThreshold, Comparator: gradeCmp, Threshold: grade.Threshold},
			Extractor: extractor.NewRodExtractor(browser, &extractor.GradePortal{
				Label:             GradePortalName,
				LoginURL:          grade.LoginURL,
				ResultsURL:        grade.ResultsURL,
				UsernameSelector:  grade.UsernameSelector,
				PasswordSelector:  grade.PasswordSelector,
				SubmitSelector:    grade.SubmitSelector,
				Pattern:           pattern,
				NavigationTimeout: grade.NavigationTimeout,
				ElementTimeout:    grade.ElementTimeout,
				PreLoginDelay:     grade.PreLoginDelay,
				SettleDelay:       grade.SettleDelay,
			}),
			RequiresCredentials: true,
		},
		session.Portal{
			Name:       ProfilePortalName,
			RecordType: ProfileRecordType,
			Claim:      claim.Claim{Kind: claim.KindActivityCountThreshold, Comparator: profileCmp, Threshold: profile.Threshold},
			Extractor: extractor.NewRodExtractor(browser, &extractor.ProfilePortal{
				Label:              ProfilePortalName,
				ProfileURL:         profile.ProfileURL,
				NavigationTimeout:  profile.NavigationTimeout,
				HydrationDelay:     profile.HydrationDelay,
				InterstitialDelay:  profile.InterstitialDelay,
				InterstitialChecks: profile.InterstitialChecks,
			}),
		},
	)
}
