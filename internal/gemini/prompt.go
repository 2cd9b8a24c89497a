package gemini

import (
	"fmt"
	"strings"

	"github.com/norm/folio-agent/internal/github"
)

// Request carries everything needed to assemble a generation prompt.
type Request struct {
	Profile  *github.Profile
	Activity []github.Repo

	FormatStyle     string
	Tone            string
	IncludeHashtags bool
}

func (r *Request) displayName() string {
	if r.Profile == nil {
		return "a developer"
	}
	if r.Profile.Name != "" {
		return r.Profile.Name
	}
	if r.Profile.Login != "" {
		return r.Profile.Login
	}
	return "a developer"
}

func (r *Request) login() string {
	if r.Profile == nil {
		return ""
	}
	return r.Profile.Login
}

// Prompt assembles the generation prompt from the profile and recent
// repository activity.
func (r *Request) Prompt() string {
	var b strings.Builder

	fmt.Fprintf(&b, "You are a professional content writer creating a %s post about a developer's work.\n", r.FormatStyle)
	fmt.Fprintf(&b, "Write in a %s tone.\n\n", r.Tone)

	fmt.Fprintf(&b, "Developer: %s\n", r.displayName())
	if r.Profile != nil {
		if r.Profile.Bio != "" {
			fmt.Fprintf(&b, "Bio: %s\n", r.Profile.Bio)
		}
		fmt.Fprintf(&b, "Public repositories: %d\n", r.Profile.PublicRepos)
		fmt.Fprintf(&b, "Followers: %d\n", r.Profile.Followers)
	}

	if len(r.Activity) > 0 {
		b.WriteString("\nRecent activity:\n")
		for _, repo := range r.Activity {
			fmt.Fprintf(&b, "- %s", repo.Name)
			if repo.Description != "" {
				fmt.Fprintf(&b, ": %s", repo.Description)
			}
			b.WriteString("\n")
			for _, c := range repo.Commits {
				fmt.Fprintf(&b, "  * %s\n", c.Message)
			}
		}
	}

	b.WriteString("\nWrite an engaging post highlighting this developer's recent work and expertise.")
	if r.IncludeHashtags {
		b.WriteString("\nEnd with relevant hashtags such as #Python #OpenSource #AI ")
	}
	b.WriteString("\nKeep it between 100 and 2000 characters.")

	return b.String()
}
