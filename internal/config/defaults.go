package config

// Default returns the production descriptor: two entries sharing a common
// chunk, the four transform rules and the static copies of the site.
func Default() *Descriptor {
	return &Descriptor{
		Context: "src",
		Dest:    "dist",
		Entries: []Entry{
			{Name: "main", Import: "./assets/js/app.js"},
			{Name: "styleguide", Import: "./assets/js/styleguide.js"},
		},
		Output: defaultOutput(),
		Rules: []Rule{
			{
				Name:     "fonts",
				Test:     []string{"**/*.{ttf,eot,woff}"},
				Use:      UseEmit,
				Filename: "assets/fonts/[name].[ext]",
			},
			{
				Name:     "images",
				Test:     []string{"**/*.{png,jpg,svg}"},
				Use:      UseInline,
				Limit:    10000,
				Filename: "assets/images/[name]-[hash].[ext]",
			},
			{
				Name: "stylesheets",
				Test: []string{"**/*.scss"},
				Use:  UseStylesheet,
			},
			{
				Name: "scripts",
				Test: []string{"**/*.js"},
				Use:  UseScript,
			},
		},
		Copy: []CopyRule{
			{From: "assets/images/", To: "assets/images/"},
			{From: "assets/vectors/", To: "assets/vectors/"},
			{From: "assets/fonts/", To: "assets/fonts/"},
			{From: "../.htaccess", To: ".htaccess", ToType: ToTypeFile},
			{From: "../.htpasswd", To: ".htpasswd", ToType: ToTypeFile},
		},
		Define: map[string]string{
			"process.env.NODE_ENV": `"production"`,
		},
		Provide: map[string]string{
			"$":             "jquery",
			"jQuery":        "jquery",
			"window.jQuery": "jquery",
		},
		Browsers:     []string{"chrome58", "edge16", "firefox57", "safari11"},
		Target:       "es2015",
		MetafilePath: "meta.json",
		ManifestPath: "manifest.json",
	}
}

func defaultOutput() *Output {
	return &Output{
		Scripts:     "assets/js/[name].bundle.js",
		Chunks:      "assets/js/common-[hash]",
		Stylesheets: "assets/css/[name].bundle.css",
		PublicPath:  "/",
	}
}

// applyDefaults fills every unset field from Default. Lists are replaced
// whole, so a file that declares rules declares all of them.
func (d *Descriptor) applyDefaults() {
	def := Default()

	if d.Context == "" {
		d.Context = def.Context
	}
	if d.Dest == "" {
		d.Dest = def.Dest
	}
	if len(d.Entries) == 0 {
		d.Entries = def.Entries
	}
	if d.Output == nil {
		d.Output = def.Output
	} else {
		out := defaultOutput()
		if d.Output.Scripts == "" {
			d.Output.Scripts = out.Scripts
		}
		if d.Output.Chunks == "" {
			d.Output.Chunks = out.Chunks
		}
		if d.Output.Stylesheets == "" {
			d.Output.Stylesheets = out.Stylesheets
		}
		if d.Output.PublicPath == "" {
			d.Output.PublicPath = out.PublicPath
		}
	}
	if len(d.Rules) == 0 {
		d.Rules = def.Rules
	}
	if d.Copy == nil {
		d.Copy = def.Copy
	}
	if d.Define == nil {
		d.Define = def.Define
	}
	if d.Provide == nil {
		d.Provide = def.Provide
	}
	if len(d.Browsers) == 0 {
		d.Browsers = def.Browsers
	}
	if d.Target == "" {
		d.Target = def.Target
	}
	if d.MetafilePath == "" {
		d.MetafilePath = def.MetafilePath
	}
	if d.ManifestPath == "" {
		d.ManifestPath = def.ManifestPath
	}
}
