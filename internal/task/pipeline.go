package task

import "context"

type step struct {
	name string
	run  func(ctx context.Context) error
}

// runPostCommit 依次执行提交后步骤。任务已经写入，因此使用与请求取消无关的上下文，
// 每一步的失败只记录日志，不影响后续步骤
func (s *Service) runPostCommit(ctx context.Context, taskID string, steps []step) {
	ctx = context.WithoutCancel(ctx)
	for _, st := range steps {
		if err := st.run(ctx); err != nil {
			s.logger.Error("任务提交后步骤执行失败", "step", st.name, "task", taskID, "error", err)
		}
	}
}
