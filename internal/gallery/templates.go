package gallery

// pageTemplate is the html/template for the gallery page.
const pageTemplate = `<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="UTF-8">
  <meta name="viewport" content="width=device-width, initial-scale=1.0">
  <title>{{.Title}}</title>
  <style>
    body { font-family: system-ui, sans-serif; margin: 0 auto; max-width: 960px; padding: 2rem 1rem; }
    .work { margin-bottom: 3rem; }
    .work h2 { margin-bottom: .5rem; }
    .thumbs { display: grid; grid-template-columns: repeat(auto-fill, minmax(200px, 1fr)); gap: .75rem; }
    .thumbs img { width: 100%; height: 160px; object-fit: cover; border-radius: 6px; }
    .empty { color: #666; }
  </style>
</head>
<body>
  <h1>{{.Title}}</h1>
  {{- if not .Items}}
  <p class="empty">No work to show yet.</p>
  {{- end}}
  {{- range .Items}}
  <section class="work">
    <h2>{{.Title}}</h2>
    {{- if .Description}}
    <div class="description">{{.Description}}</div>
    {{- end}}
    <div class="thumbs">
      {{- range .Images}}
      <a href="{{.Src}}"><img src="{{.Src}}" alt="{{.Alt}}" loading="lazy" decoding="async"></a>
      {{- end}}
    </div>
  </section>
  {{- end}}
</body>
</html>
`
