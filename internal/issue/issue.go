// SPDX-License-Identifier: MPL-2.0

package issue

import (
	"cmp"
	"maps"
	"slices"
	"strings"

	"github.com/charmbracelet/glamour"
)

type Id int

const (
	ConfigLoadFailedId Id = iota + 1
	EntryNotFoundId
	ResolutionFailedId
	RegistryUnreachableId
	CacheUnreadableId
	HeaderWriteFailedId
	MetafileInvalidId
)

type MarkdownMsg string

type HttpLink string

type Issue struct {
	id       Id          // ID used to lookup the issue
	mdMsg    MarkdownMsg // Markdown text that will be rendered
	extLinks []HttpLink  // external links that might be useful for the user
}

func (i *Issue) Id() Id {
	return i.id
}

func (i *Issue) MarkdownMsg() MarkdownMsg {
	return i.mdMsg
}

func (i *Issue) ExtLinks() []HttpLink {
	return slices.Clone(i.extLinks)
}

func (i *Issue) Render(stylePath string) (string, error) {
	var md strings.Builder
	md.WriteString(string(i.mdMsg))
	if len(i.extLinks) > 0 {
		md.WriteString("\n\n## See also\n")
		for _, link := range i.extLinks {
			md.WriteString("- <" + string(link) + ">\n")
		}
	}
	return render(md.String(), stylePath)
}

var (
	render = glamour.Render

	configLoadFailedIssue = &Issue{
		id: ConfigLoadFailedId,
		mdMsg: `
# Failed to load userpack.cue!

The configuration file could not be read or does not match the schema.

## Things you can try:
- Print the effective configuration:
~~~
$ userpack config show
~~~
- Regenerate a default file and copy your settings over:
~~~
$ userpack config init --force
~~~
- Remember that ` + "`url`" + ` is either a single string or ` + "`{dev: ..., prod: ...}`" + `.`,
	}

	entryNotFoundIssue = &Issue{
		id: EntryNotFoundId,
		mdMsg: `
# No entry has a userscript header!

None of the entry files starts a ` + "`// ==UserScript==`" + ` block, so there is no
header to extend.

## Things you can try:
- Add a header to your entry file:
~~~js
// ==UserScript==
// @name         My script
// @match        *://*/*
// ==/UserScript==
~~~
- Check that the header block is closed with ` + "`// ==/UserScript==`" + `.`,
	}

	resolutionFailedIssue = &Issue{
		id: ResolutionFailedId,
		mdMsg: `
# Could not resolve a dependency link!

An external dependency could not be located in the local package cache and the
CDN listing held no usable bundle for it.

## Things you can try:
- Install the package so its UMD build is available locally:
~~~
$ npm install <package>
~~~
- Pin an exact version in package.json or in the externals entry.
- Give the external an explicit ` + "`url`" + ` in userpack.cue.
- Try the lookup on its own:
~~~
$ userpack resolve <package> <version>
~~~`,
		extLinks: []HttpLink{"https://unpkg.com"},
	}

	registryUnreachableIssue = &Issue{
		id: RegistryUnreachableId,
		mdMsg: `
# The package CDN did not answer!

A directory listing request failed before it produced an answer.

## Things you can try:
- Check your network connection and proxy settings.
- Raise ` + "`registry.timeout`" + ` in userpack.cue.
- Point ` + "`registry.base_url`" + ` at a reachable mirror.`,
	}

	cacheUnreadableIssue = &Issue{
		id: CacheUnreadableId,
		mdMsg: `
# The package cache could not be read!

A directory under ` + "`node_modules`" + ` exists but could not be listed.

## Things you can try:
- Check the permissions of the package directory.
- Reinstall dependencies:
~~~
$ rm -rf node_modules && npm install
~~~`,
	}

	headerWriteFailedIssue = &Issue{
		id: HeaderWriteFailedId,
		mdMsg: `
# Failed to write the userscript header!

The build finished but the header could not be written into an output file.

## Things you can try:
- Check that the output directory is writable.
- Make sure no other process holds the output files open.`,
	}

	metafileInvalidIssue = &Issue{
		id: MetafileInvalidId,
		mdMsg: `
# The bundler metafile could not be used!

` + "`userpack inject`" + ` needs the JSON metafile written by the bundler.

## Things you can try:
- Build with metafile output enabled:
~~~
$ esbuild src/index.js --bundle --metafile=meta.json --outdir=dist
~~~
- Pass the metafile and output directory explicitly:
~~~
$ userpack inject --metafile meta.json --dist dist
~~~`,
		extLinks: []HttpLink{"https://esbuild.github.io/api/#metafile"},
	}

	issues = map[Id]*Issue{
		configLoadFailedIssue.Id():    configLoadFailedIssue,
		entryNotFoundIssue.Id():       entryNotFoundIssue,
		resolutionFailedIssue.Id():    resolutionFailedIssue,
		registryUnreachableIssue.Id(): registryUnreachableIssue,
		cacheUnreadableIssue.Id():     cacheUnreadableIssue,
		headerWriteFailedIssue.Id():   headerWriteFailedIssue,
		metafileInvalidIssue.Id():     metafileInvalidIssue,
	}
)

// Values returns every catalog entry ordered by ID.
func Values() []*Issue {
	return slices.SortedFunc(maps.Values(issues), func(a, b *Issue) int {
		return cmp.Compare(a.id, b.id)
	})
}

func Get(id Id) *Issue {
	return issues[id]
}
