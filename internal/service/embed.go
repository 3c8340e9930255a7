package service

import (
	"bytes"
	"fmt"
	"html/template"
	"net/url"
	"sort"
	"strings"

	"github.com/jchs-nexus/nexus-portal/internal/apperr"
	"github.com/jchs-nexus/nexus-portal/internal/model"
)

// embedVariant 每个服务一个渲染变体，各自持有模板和允许的域名
type embedVariant struct {
	hosts []string
	tmpl  *template.Template
}

func variant(name, markup string, hosts ...string) embedVariant {
	return embedVariant{hosts: hosts, tmpl: template.Must(template.New(name).Parse(markup))}
}

var embedVariants = map[string]embedVariant{
	model.MusicSpotify: variant(model.MusicSpotify,
		`<iframe class="embed embed-spotify" src="{{.URL}}" title="{{.Title}}" width="100%" height="152" frameborder="0" allow="autoplay; clipboard-write; encrypted-media; fullscreen; picture-in-picture" loading="lazy"></iframe>`,
		"open.spotify.com"),
	model.MusicSoundCloud: variant(model.MusicSoundCloud,
		`<iframe class="embed embed-soundcloud" src="{{.URL}}" title="{{.Title}}" width="100%" height="166" scrolling="no" frameborder="no" allow="autoplay"></iframe>`,
		"w.soundcloud.com", "soundcloud.com"),
	model.MusicAppleMusic: variant(model.MusicAppleMusic,
		`<iframe class="embed embed-apple" src="{{.URL}}" title="{{.Title}}" width="100%" height="175" frameborder="0" allow="autoplay *; encrypted-media *;" sandbox="allow-forms allow-popups allow-same-origin allow-scripts allow-top-navigation-by-user-activation"></iframe>`,
		"embed.music.apple.com"),
	model.MusicCustomIframe: variant(model.MusicCustomIframe,
		`<iframe class="embed embed-custom" src="{{.URL}}" title="{{.Title}}" width="100%" height="200" frameborder="0" sandbox="allow-scripts allow-same-origin allow-presentation"></iframe>`,
		"www.youtube.com", "www.youtube-nocookie.com", "player.vimeo.com", "bandcamp.com"),
}

// 游戏嵌入：沙箱里不给 allow-top-navigation，防止把页面跳走
var gameEmbedVariants = map[string]embedVariant{
	model.GameItchIO: variant(model.GameItchIO,
		`<iframe class="embed embed-game embed-itch" src="{{.URL}}" title="{{.Title}}" width="100%" height="540" frameborder="0" allowfullscreen sandbox="allow-scripts allow-same-origin allow-pointer-lock"></iframe>`,
		"itch.io", "html-classic.itch.zone"),
	model.GameScratch: variant(model.GameScratch,
		`<iframe class="embed embed-game embed-scratch" src="{{.URL}}" title="{{.Title}}" width="485" height="402" frameborder="0" scrolling="no" allowfullscreen sandbox="allow-scripts allow-same-origin"></iframe>`,
		"scratch.mit.edu", "turbowarp.org"),
	model.GameCustomIframe: variant(model.GameCustomIframe,
		`<iframe class="embed embed-game embed-custom" src="{{.URL}}" title="{{.Title}}" width="100%" height="540" frameborder="0" sandbox="allow-scripts allow-same-origin"></iframe>`,
		"html5.gamedistribution.com", "www.crazygames.com", "www.youtube.com"),
}

func providerNames(variants map[string]embedVariant) string {
	names := make([]string, 0, len(variants))
	for k := range variants {
		names = append(names, k)
	}
	sort.Strings(names)
	return strings.Join(names, ", ")
}

func checkVariantURL(variants map[string]embedVariant, providerField, provider, raw string) (*url.URL, error) {
	v, ok := variants[provider]
	if !ok {
		return nil, apperr.Validation("unsupported embed provider",
			apperr.FieldError{Field: providerField, Message: "must be one of " + providerNames(variants)})
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme != "https" || u.Host == "" || u.User != nil {
		return nil, apperr.Validation("invalid embed url", apperr.FieldError{Field: "embed_url", Message: "must be an https url"})
	}
	host := strings.ToLower(u.Hostname())
	for _, h := range v.hosts {
		if host == h {
			return u, nil
		}
	}
	return nil, apperr.Validation("embed url host not allowed",
		apperr.FieldError{Field: "embed_url", Message: fmt.Sprintf("host %s is not allowed for %s", host, provider)})
}

func renderVariant(variants map[string]embedVariant, providerField, provider, raw, title string) (template.HTML, error) {
	u, err := checkVariantURL(variants, providerField, provider, raw)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	data := struct {
		URL   string
		Title string
	}{URL: u.String(), Title: title}
	if err := variants[provider].tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render embed: %w", err)
	}
	return template.HTML(buf.String()), nil
}

// CheckEmbedURL 只接受 https 且域名属于该音乐服务的地址
func CheckEmbedURL(service, raw string) (*url.URL, error) {
	return checkVariantURL(embedVariants, "service", service, raw)
}

// RenderEmbed renders the provider's iframe markup for e.
func RenderEmbed(e *model.MusicEmbed) (template.HTML, error) {
	return renderVariant(embedVariants, "service", e.Service, e.EmbedURL, e.Title)
}

func CheckGameEmbedURL(provider, raw string) (*url.URL, error) {
	return checkVariantURL(gameEmbedVariants, "embed_provider", provider, raw)
}

// RenderGameEmbed 渲染活动的内嵌游戏；没有嵌入时返回空
func RenderGameEmbed(a *model.Activity) (template.HTML, error) {
	if a.EmbedProvider == "" {
		return "", nil
	}
	return renderVariant(gameEmbedVariants, "embed_provider", a.EmbedProvider, a.EmbedURL, a.Title)
}
