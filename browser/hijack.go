package browser

import (
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/proto"
)

// configToProto maps human-readable config strings to Rod protocol resource
// types. Images and stylesheets are deliberately absent: the console's
// controls are <img> links that must render to be clickable.
var configToProto = map[string]proto.NetworkResourceType{
	"Font":     proto.NetworkResourceTypeFont,
	"Media":    proto.NetworkResourceTypeMedia,
	"Manifest": proto.NetworkResourceTypeManifest,
	"Ping":     proto.NetworkResourceTypePing,
}

// blockedSet resolves configured names, ignoring unknown ones.
func blockedSet(names []string) map[proto.NetworkResourceType]struct{} {
	blocked := make(map[proto.NetworkResourceType]struct{}, len(names))
	for _, name := range names {
		if rt, ok := configToProto[name]; ok {
			blocked[rt] = struct{}{}
		}
	}
	return blocked
}

// setupHijack installs a request interceptor that fails requests of the
// blocked resource types and continues everything else.
//
// Returns the running HijackRouter so Close can stop it, or nil when there
// is nothing to block.
func setupHijack(page *rod.Page, blockedTypes []string) *rod.HijackRouter {
	blocked := blockedSet(blockedTypes)
	if len(blocked) == 0 {
		return nil
	}

	router := page.HijackRequests()
	_ = router.Add("*", "", func(ctx *rod.Hijack) {
		if _, shouldBlock := blocked[ctx.Request.Type()]; shouldBlock {
			ctx.Response.Fail(proto.NetworkErrorReasonBlockedByClient)
			return
		}
		ctx.ContinueRequest(&proto.FetchContinueRequest{})
	})

	// router.Run() blocks until router.Stop().
	go router.Run()

	return router
}
