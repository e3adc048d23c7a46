package routes

// 各业务模块的挂载前缀
const (
	PrefixV1            = "/v1"
	PrefixTasks         = "/api/tasks"
	PrefixEvaluate      = "/api/evaluate"
	PrefixAccounts      = "/api/accounts"
	PrefixKnowledge     = "/api/knowledge"
	PrefixTextbook      = "/api/textbook"
	PrefixVideo         = "/api/video"
	PrefixClaude        = "/api/claude"
	PrefixMCP           = "/api/mcp"
	PrefixRPG           = "/api/rpg"
	PrefixSchoolSim     = "/api/school_sim"
	PrefixMessages      = "/api/messages"
	PrefixStory         = "/api/story"
	PrefixZImage        = "/api/z_image"
	PrefixSpecialScript = "/api/special_script"
)

// Features 汇总全部业务子路由，由 app 包负责构造
type Features struct {
	V1            Mounter
	Tasks         Mounter
	Evaluate      Mounter
	Accounts      Mounter
	Knowledge     Mounter
	Textbook      Mounter
	Video         Mounter
	Claude        Mounter
	MCP           Mounter
	RPG           Mounter
	SchoolSim     Mounter
	Messages      Mounter
	Story         Mounter
	ZImage        Mounter
	SpecialScript Mounter
}

// Manifest 返回固定顺序的路由清单。
// /v1 代理单独挂载，其余业务统一位于 /api 下；顺序只影响文档分组。
func Manifest(f Features) []Entry {
	return []Entry{
		{Prefix: PrefixV1, Tag: "V1 Proxy", Router: f.V1},

		{Prefix: PrefixTasks, Tag: "Tasks", Router: f.Tasks},
		{Prefix: PrefixEvaluate, Tag: "Evaluate", Router: f.Evaluate},
		{Prefix: PrefixAccounts, Tag: "Accounts", Router: f.Accounts},
		{Prefix: PrefixKnowledge, Tag: "Knowledge", Router: f.Knowledge},
		{Prefix: PrefixTextbook, Tag: "Textbook", Router: f.Textbook},
		{Prefix: PrefixVideo, Tag: "Video", Router: f.Video},
		{Prefix: PrefixClaude, Tag: "Claude", Router: f.Claude},
		{Prefix: PrefixMCP, Tag: "MCP", Router: f.MCP},
		{Prefix: PrefixRPG, Tag: "RPG", Router: f.RPG},
		{Prefix: PrefixSchoolSim, Tag: "SchoolSim", Router: f.SchoolSim},
		{Prefix: PrefixMessages, Tag: "Messages", Router: f.Messages},
		{Prefix: PrefixStory, Tag: "Story", Router: f.Story},
		{Prefix: PrefixZImage, Tag: "ZImage", Router: f.ZImage},
		{Prefix: PrefixSpecialScript, Tag: "SpecialScript", Router: f.SpecialScript},
	}
}
