package tasks

// User-facing replies.
const (
	msgPermissionDenied = "权限不足：只有管理员和教师可以创建任务"
	msgCreated          = "任务 '%s' 创建成功"
	msgReactivated      = "任务 '%s' 已重新激活"
	msgCreateFailed     = "任务创建失败，请稍后重试"
	msgNoActiveTasks    = "当前没有活动任务，无法提交"
	msgNoEligible       = "当前没有适合您的活动任务"
	msgChooseHeader     = "当前有多个活动任务，请选择：\n"
	msgChooseFooter     = "请输入任务编号（1-%d）："
	msgInvalidSelection = "任务编号无效，请输入 1-%d 之间的数字"
	msgSubmitted        = "✅ 任务提交成功！\n已保存到：%s（创建者：%s）"
	msgSubmitFailed     = "⚠️ 任务提交失败：汇总文件未正确创建"
)
