package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	customsearch "google.golang.org/api/customsearch/v1"
	"google.golang.org/api/option"

	"recipe-vault-backend/internal/logger"
	"recipe-vault-backend/models"
)

var (
	parentheticalPattern = regexp.MustCompile(`\s*\([^)]*\)`)
	possessivePattern    = regexp.MustCompile(`^[A-Za-z]+'s\s+`)
	countPrefixPattern   = regexp.MustCompile(`(?i)^\d+[- ](?:minute|min|hour|ingredient|step)s?\s+`)
	commonPrefixPattern  = regexp.MustCompile(`(?i)^(?:easy|quick|best|perfect|simple|classic|homemade|the best)\s+`)
	trailingPattern      = regexp.MustCompile(`(?i)\s+(?:served with|topped with|with)\s+.*$`)
)

// ImageSearchService finds candidate images for recipes through Google
// Custom Search. Results are filtered and validated before they reach
// the picker; a search that fails just yields no candidates.
type ImageSearchService struct {
	search  *customsearch.Service
	cx      string
	client  *http.Client
	blocked []string
}

// NewImageSearchService creates a search service. blockedDomains lists
// hosts whose images can't be hotlinked (login walls, aggressive
// referer checks) and are dropped from results.
func NewImageSearchService(ctx context.Context, apiKey, cx string, blockedDomains []string) (*ImageSearchService, error) {
	search, err := customsearch.NewService(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("failed to create custom search service: %w", err)
	}

	return &ImageSearchService{
		search:  search,
		cx:      cx,
		client:  &http.Client{Timeout: 5 * time.Second},
		blocked: blockedDomains,
	}, nil
}

// SearchImages returns up to count validated image URLs for a recipe
// title. recipeType tweaks the query ("beverage" recipes search better
// as drinks). Failures are logged and return an empty slice, never an
// error: a recipe without image candidates is still a recipe.
func (s *ImageSearchService) SearchImages(ctx context.Context, title string, count int, recipeType string) []string {
	if count <= 0 {
		count = 10
	}

	simplified := SimplifyRecipeTitle(title)
	query := simplified + " recipe"
	if strings.Contains(strings.ToLower(recipeType), "beverage") || strings.Contains(strings.ToLower(recipeType), "drink") {
		query = simplified + " drink"
	}

	resp, err := s.search.Cse.List().
		Q(query).
		Cx(s.cx).
		SearchType("image").
		Num(int64(count)).
		ImgSize("xlarge").
		ImgType("photo").
		Context(ctx).
		Do()
	if err != nil {
		logger.Warn("Image search failed", "title", title, "error", err.Error())
		return []string{}
	}

	var links []string
	for _, item := range resp.Items {
		if item.Link == "" || s.blockedDomain(item.Link) {
			continue
		}
		links = append(links, item.Link)
	}

	validated := s.ValidateImageURLs(ctx, links)
	logger.Info("Image search completed",
		"title", title,
		"query", query,
		"results", len(resp.Items),
		"validated", len(validated),
	)
	return validated
}

// ValidateImageURLs keeps only URLs that answer a HEAD request with
// 200 and an image Content-Type. Dead links in the picker would leave
// recipes with broken images after selection.
func (s *ImageSearchService) ValidateImageURLs(ctx context.Context, urls []string) []string {
	valid := []string{}
	for _, candidate := range urls {
		if candidate == "" {
			continue
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodHead, candidate, nil)
		if err != nil {
			continue
		}
		for name, value := range browserHeaders {
			req.Header.Set(name, value)
		}

		resp, err := s.client.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()

		if resp.StatusCode != http.StatusOK {
			continue
		}
		if !strings.Contains(strings.ToLower(resp.Header.Get("Content-Type")), "image") {
			continue
		}

		valid = append(valid, candidate)
	}
	return valid
}

func (s *ImageSearchService) blockedDomain(link string) bool {
	parsed, err := url.Parse(link)
	if err != nil {
		return true
	}

	host := strings.ToLower(parsed.Hostname())
	for _, domain := range s.blocked {
		if host == domain || strings.HasSuffix(host, "."+domain) {
			return true
		}
	}
	return false
}

// SimplifyRecipeTitle strips the noise recipe titles accumulate
// ("Easy", "30-Minute", "Mom's", parentheticals, trailing "with ..."
// qualifiers) so the search query describes the dish itself.
func SimplifyRecipeTitle(title string) string {
	title = parentheticalPattern.ReplaceAllString(title, "")
	title = strings.TrimSpace(title)
	title = possessivePattern.ReplaceAllString(title, "")
	title = countPrefixPattern.ReplaceAllString(title, "")
	title = commonPrefixPattern.ReplaceAllString(title, "")
	title = trailingPattern.ReplaceAllString(title, "")
	return strings.Join(strings.Fields(title), " ")
}

// SelectUniqueImageURL picks the first candidate not already used by
// another recipe, so picker defaults don't repeat across the catalog.
// When every candidate is taken the first one wins anyway.
func SelectUniqueImageURL(searchResults []string, used map[string]bool) string {
	if len(searchResults) == 0 {
		return ""
	}

	for _, candidate := range searchResults {
		if !used[candidate] {
			return candidate
		}
	}
	return searchResults[0]
}

// ExtractUsedImageURLs collects every image_url already assigned in
// the catalog.
func ExtractUsedImageURLs(catalog map[string]models.Recipe) map[string]bool {
	used := make(map[string]bool)
	for _, recipe := range catalog {
		if recipe.ImageURL != "" {
			used[recipe.ImageURL] = true
		}
	}
	return used
}
