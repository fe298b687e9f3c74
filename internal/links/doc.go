// Package links recognises Bilibili video links in user input.
//
// Accepted forms are full video URLs, b23.tv short links, bare BV and av ids,
// and the "【title】 https://..." share text the mobile apps copy to the
// clipboard. Input is NFKC-normalised first so full-width characters pasted
// from chat clients still match.
package links
