package database

import (
	"go.uber.org/zap"
	"gorm.io/gorm"

	"Attendly/internal/model"
	"Attendly/pkg/logger"
)

// appendOnlyDDL 在库层面拒绝修改或删除签到流水（模型上另有 BeforeUpdate/BeforeDelete hook）
var appendOnlyDDL = []string{
	`CREATE OR REPLACE FUNCTION attendance_marks_immutable() RETURNS trigger AS $$
BEGIN
	RAISE EXCEPTION 'attendance_marks is append-only';
END;
$$ LANGUAGE plpgsql`,
	`DROP TRIGGER IF EXISTS attendance_marks_immutable ON attendance_marks`,
	`CREATE TRIGGER attendance_marks_immutable BEFORE UPDATE OR DELETE ON attendance_marks
	FOR EACH ROW EXECUTE FUNCTION attendance_marks_immutable()`,
}

// Migrate 运行数据库迁移，创建所有表
// registrations 由报名服务维护，这里只在表不存在时建出来，便于单独部署
func Migrate() error {
	db := DB()
	if db == nil {
		return gorm.ErrInvalidDB
	}

	logger.Logger.Info("Starting database migration...")

	err := db.AutoMigrate(
		&model.EventAttendanceStrategy{},
		&model.AttendanceMark{},
	)
	if err != nil {
		logger.Logger.Error("Database migration failed", zap.Error(err))
		return err
	}

	for _, stmt := range appendOnlyDDL {
		if err := db.Exec(stmt).Error; err != nil {
			logger.Logger.Error("Failed to install append-only trigger", zap.Error(err))
			return err
		}
	}

	if !db.Migrator().HasTable(&model.Registration{}) {
		if err := db.Migrator().CreateTable(&model.Registration{}); err != nil {
			logger.Logger.Error("Failed to create registrations table", zap.Error(err))
			return err
		}
	}

	logger.Logger.Info("Database migration completed successfully")
	return nil
}
